package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
)

// Publisher receives committed state transitions for fanout. The state
// machine invokes it while still holding the auction's lock, so events for
// one auction always arrive in commit order. Implementations must not call
// back into the engine.
type Publisher interface {
	PublishBidCommitted(snap model.Snapshot, bid model.Bid)
	PublishAuctionEnded(snap model.Snapshot)
}

// NopPublisher discards all events
type NopPublisher struct{}

func (NopPublisher) PublishBidCommitted(model.Snapshot, model.Bid) {}
func (NopPublisher) PublishAuctionEnded(model.Snapshot)            {}

// StateMachine owns the authoritative in-memory snapshot of every loaded
// auction. It is the only writer of currentPrice and the winning-bid flag;
// every other component reads committed snapshots.
type StateMachine struct {
	store     repository.AuctionStore
	publisher Publisher
	clock     func() time.Time

	mu     sync.RWMutex
	states map[string]*auctionState
}

type auctionState struct {
	// mu guards the snapshot across its whole read-modify-persist-update
	// cycle, so lifecycle transitions and bid commits for one auction never
	// interleave.
	mu   sync.RWMutex
	snap model.Snapshot
}

func NewStateMachine(store repository.AuctionStore, publisher Publisher, clock func() time.Time) *StateMachine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &StateMachine{
		store:     store,
		publisher: publisher,
		clock:     clock,
		states:    make(map[string]*auctionState),
	}
}

// Load returns the auction's committed snapshot, fetching it from the store
// on first access.
func (m *StateMachine) Load(ctx context.Context, auctionID string) (model.Snapshot, error) {
	m.mu.RLock()
	st, ok := m.states[auctionID]
	m.mu.RUnlock()
	if ok {
		st.mu.RLock()
		defer st.mu.RUnlock()
		return st.snap, nil
	}

	auction, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Snapshot{}, err
	}

	var winning *model.Bid
	if bid, err := m.store.WinningBid(ctx, auctionID); err == nil {
		winning = &bid
	} else if !errors.Is(err, auctionerrors.ErrNoBids) {
		return model.Snapshot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[auctionID]; ok {
		// lost the load race; the resident state is authoritative
		st.mu.RLock()
		defer st.mu.RUnlock()
		return st.snap, nil
	}
	st = &auctionState{snap: model.SnapshotOf(auction, winning, 0)}
	m.states[auctionID] = st
	return st.snap, nil
}

// Evict drops a terminal auction's resident state. Callers must only evict
// after the auction is ENDED and its lane has drained.
func (m *StateMachine) Evict(auctionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, auctionID)
}

// ApplyBid commits a validated bid: persists it with the conditional fence,
// then advances the in-memory snapshot. The operation either fully commits or
// leaves the snapshot untouched. A transient persist failure is retried once
// against the same pre-apply snapshot; a second failure reports SYSTEM_ERROR.
func (m *StateMachine) ApplyBid(ctx context.Context, bid model.Bid) (model.Snapshot, error) {
	st, err := m.resident(bid.AuctionID)
	if err != nil {
		return model.Snapshot{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	snap := st.snap
	commit := repository.BidCommit{
		AuctionID:     bid.AuctionID,
		ExpectedPrice: snap.CurrentPrice,
		Bid:           bid,
	}

	err = m.store.CommitBid(ctx, commit)
	if errors.Is(err, auctionerrors.ErrStoreTransient) && snap.Status == model.StatusLive {
		utils.Warn("retrying bid commit after transient store failure", map[string]any{
			"auction_id": bid.AuctionID,
			"bid_id":     bid.BidID,
			"error":      err.Error(),
		})
		err = m.store.CommitBid(ctx, commit)
	}
	if err != nil {
		switch {
		case errors.Is(err, auctionerrors.ErrPriceConflict):
			// another writer moved the price under us; the bidder lost a race
			return snap, auctionerrors.Reject(auctionerrors.ReasonSuperseded, "price changed during commit")
		case errors.Is(err, auctionerrors.ErrStoreTransient):
			utils.Error("bid commit failed after retry", map[string]any{
				"auction_id": bid.AuctionID,
				"bid_id":     bid.BidID,
				"error":      err.Error(),
			})
			return snap, auctionerrors.Reject(auctionerrors.ReasonSystemError, "could not persist bid")
		default:
			return snap, fmt.Errorf("apply bid %s: %w", bid.BidID, err)
		}
	}

	bid.IsWinning = true
	next := snap
	next.CurrentPrice = bid.Amount
	next.WinningBid = &bid
	next.Seq++
	st.snap = next
	m.publisher.PublishBidCommitted(next, bid)
	return next, nil
}

// Activate transitions an UPCOMING auction to LIVE
func (m *StateMachine) Activate(ctx context.Context, auctionID string) (model.Snapshot, error) {
	st, err := m.resident(auctionID)
	if err != nil {
		return model.Snapshot{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.snap.Status != model.StatusUpcoming {
		return st.snap, fmt.Errorf("activate auction %s from %s: %w",
			auctionID, st.snap.Status, auctionerrors.ErrInvalidTransition)
	}
	if err := m.store.SetStatus(ctx, auctionID, model.StatusLive); err != nil {
		return st.snap, fmt.Errorf("activate auction %s: %w", auctionID, err)
	}

	next := st.snap
	next.Status = model.StatusLive
	next.Seq++
	st.snap = next
	return next, nil
}

// End transitions an auction to its terminal ENDED state and, for team
// drafts with a winner, records the closed lot.
func (m *StateMachine) End(ctx context.Context, auctionID string) (model.Snapshot, error) {
	st, err := m.resident(auctionID)
	if err != nil {
		return model.Snapshot{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.snap.Status == model.StatusEnded {
		return st.snap, fmt.Errorf("end auction %s: %w", auctionID, auctionerrors.ErrInvalidTransition)
	}
	if err := m.store.SetStatus(ctx, auctionID, model.StatusEnded); err != nil {
		return st.snap, fmt.Errorf("end auction %s: %w", auctionID, err)
	}

	next := st.snap
	next.Status = model.StatusEnded
	next.Seq++
	st.snap = next

	if next.Type == model.TypeTeamDraft && next.Draft != nil && next.WinningBid != nil {
		lot := model.LotResult{
			DraftID:   next.Draft.DraftID,
			AuctionID: auctionID,
			WinnerID:  next.WinningBid.UserID,
			Price:     next.WinningBid.Amount,
			ClosedAt:  m.clock(),
		}
		if err := m.store.RecordLot(ctx, lot); err != nil {
			// the lot ledger is derivable from bids; log and keep the close
			utils.Error("failed to record closed lot", map[string]any{
				"auction_id": auctionID,
				"draft_id":   next.Draft.DraftID,
				"error":      err.Error(),
			})
		}
	}

	m.publisher.PublishAuctionEnded(next)
	return next, nil
}

func (m *StateMachine) resident(auctionID string) (*auctionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %s not loaded: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return st, nil
}
