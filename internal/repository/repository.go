package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// BidCommit is one atomic bid mutation. ExpectedPrice is the conditional
// fence: the store must refuse the commit if the auction's stored current
// price no longer equals it.
type BidCommit struct {
	AuctionID     string
	ExpectedPrice decimal.Decimal
	Bid           model.Bid
}

// AuctionStore defines the durable storage boundary for the bidding engine.
// It is the durability backstop, never a second writer: all price/isWinning
// mutations arrive through CommitBid from the state machine.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	AuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus) error
	CommitBid(ctx context.Context, commit BidCommit) error
	BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	WinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, userID string) (model.User, error)
	RecordLot(ctx context.Context, lot model.LotResult) error
	WonLots(ctx context.Context, draftID, userID string) ([]model.LotResult, error)
	RecordView(ctx context.Context, userID, auctionID string) error
}

// MemoryStore is a concurrency-safe in-memory implementation of AuctionStore
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction     // key: auctionID
	bids     map[string][]model.Bid       // key: auctionID -> bids in commit order
	users    map[string]model.User        // key: userID
	lots     map[string][]model.LotResult // key: draftID -> closed lots
	views    map[string]model.AuctionView // key: userID + "/" + auctionID
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
		users:    make(map[string]model.User),
		lots:     make(map[string][]model.LotResult),
		views:    make(map[string]model.AuctionView),
	}
}

// CreateAuction stores a new auction record
func (s *MemoryStore) CreateAuction(_ context.Context, a model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := a.Core().AuctionID
	if _, ok := s.auctions[id]; ok {
		return fmt.Errorf("create auction %s: %w", id, auctionerrors.ErrInvalidAuction)
	}
	s.auctions[id] = a
	return nil
}

// GetAuction returns the stored auction record
func (s *MemoryStore) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// AuctionsByStatus returns every stored auction in the given status
func (s *MemoryStore) AuctionsByStatus(_ context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Auction
	for _, a := range s.auctions {
		if a.Core().Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

// SetStatus persists a lifecycle transition
func (s *MemoryStore) SetStatus(_ context.Context, auctionID string, status model.AuctionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return fmt.Errorf("set status for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	s.auctions[auctionID] = withStatus(a, status)
	return nil
}

// CommitBid atomically records a bid, updates the auction's current price and
// flips the previous winning bid, refusing the commit if the stored price
// moved past the expected one.
func (s *MemoryStore) CommitBid(_ context.Context, commit BidCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[commit.AuctionID]
	if !ok {
		return fmt.Errorf("commit bid for auction %s: %w", commit.AuctionID, auctionerrors.ErrAuctionNotFound)
	}
	if !a.Core().CurrentPrice.Equal(commit.ExpectedPrice) {
		return fmt.Errorf("commit bid for auction %s: %w", commit.AuctionID, auctionerrors.ErrPriceConflict)
	}

	bids := s.bids[commit.AuctionID]
	for i := range bids {
		bids[i].IsWinning = false
	}
	bid := commit.Bid
	bid.IsWinning = true
	s.bids[commit.AuctionID] = append(bids, bid)
	s.auctions[commit.AuctionID] = withPrice(a, bid.Amount)
	return nil
}

// BidsByAuction returns all bids for an auction in commit order
func (s *MemoryStore) BidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return append([]model.Bid(nil), s.bids[auctionID]...), nil
}

// WinningBid returns the bid currently flagged as winning
func (s *MemoryStore) WinningBid(_ context.Context, auctionID string) (model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bids, ok := s.bids[auctionID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].IsWinning {
			return bids[i], nil
		}
	}
	return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
}

// CreateUser stores a user record
func (s *MemoryStore) CreateUser(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
	return nil
}

// GetUser returns a user record
func (s *MemoryStore) GetUser(_ context.Context, userID string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, auctionerrors.ErrUserNotFound)
	}
	return u, nil
}

// RecordLot stores a closed team-draft lot
func (s *MemoryStore) RecordLot(_ context.Context, lot model.LotResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.DraftID] = append(s.lots[lot.DraftID], lot)
	return nil
}

// WonLots returns the lots a user has won in a draft
func (s *MemoryStore) WonLots(_ context.Context, draftID, userID string) ([]model.LotResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var won []model.LotResult
	for _, lot := range s.lots[draftID] {
		if lot.WinnerID == userID {
			won = append(won, lot)
		}
	}
	return won, nil
}

// RecordView upserts the user's last-viewed timestamp for an auction
func (s *MemoryStore) RecordView(_ context.Context, userID, auctionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[userID+"/"+auctionID] = model.AuctionView{
		UserID:       userID,
		AuctionID:    auctionID,
		LastViewedAt: time.Now().UTC(),
	}
	return nil
}

// withPrice returns a copy of the auction with CurrentPrice replaced
func withPrice(a model.Auction, price decimal.Decimal) model.Auction {
	switch v := a.(type) {
	case model.SingleItemAuction:
		v.CurrentPrice = price
		return v
	case model.TeamDraftAuction:
		v.CurrentPrice = price
		return v
	}
	return a
}

// withStatus returns a copy of the auction with Status replaced
func withStatus(a model.Auction, status model.AuctionStatus) model.Auction {
	switch v := a.(type) {
	case model.SingleItemAuction:
		v.Status = status
		return v
	case model.TeamDraftAuction:
		v.Status = status
		return v
	}
	return a
}
