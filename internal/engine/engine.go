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

	"github.com/shopspring/decimal"
)

// Options configures the engine's concurrency and scheduling knobs
type Options struct {
	LaneQueueDepth     int           // pending bids per auction before backpressure
	LaneEnqueueTimeout time.Duration // max wait for a lane slot
	SweepInterval      time.Duration // lifecycle sweeper period
	Clock              func() time.Time
}

func (o *Options) withDefaults() {
	if o.LaneQueueDepth <= 0 {
		o.LaneQueueDepth = 64
	}
	if o.LaneEnqueueTimeout <= 0 {
		o.LaneEnqueueTimeout = 2 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 500 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
}

// Engine is the bidding core. PlaceBid is the only path that mutates auction
// state; the HTTP handlers and the websocket layer both go through it.
type Engine struct {
	store   repository.AuctionStore
	sm      *StateMachine
	arbiter *Arbiter
	clock   func() time.Time
	sweep   time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds an engine over the given store, publishing committed
// transitions to the given publisher. Call Start to run the lifecycle
// sweeper and Stop to tear the engine down.
func New(store repository.AuctionStore, publisher Publisher, opts Options) *Engine {
	opts.withDefaults()
	e := &Engine{
		store: store,
		clock: opts.Clock,
		sweep: opts.SweepInterval,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.sm = NewStateMachine(store, publisher, opts.Clock)
	e.arbiter = NewArbiter(e.execute, opts.LaneQueueDepth, opts.LaneEnqueueTimeout)
	return e
}

// Start launches the lifecycle sweeper that activates auctions whose start
// time has arrived and ends auctions past their end time.
func (e *Engine) Start() {
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.sweepLifecycles()
			case <-e.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper. In-flight lane entries still resolve.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	<-e.done
}

// PlaceBid submits a bid for serialized processing in the auction's lane and
// waits for its outcome. The returned BidResult is definitive: accepted with
// the new snapshot, or rejected with an enumerated reason. The error return
// is reserved for infrastructure failures before the bid reached its lane.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (BidResult, error) {
	if auctionID == "" || userID == "" {
		return BidResult{}, fmt.Errorf("place bid: %w - missing auction or user id", auctionerrors.ErrInvalidBid)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return BidResult{}, fmt.Errorf("place bid: %w - non-positive amount", auctionerrors.ErrInvalidBid)
	}

	snap, err := e.sm.Load(ctx, auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrAuctionNotFound) {
			return rejected(auctionerrors.ReasonUnknownAuction, "no such auction", model.Snapshot{}), nil
		}
		return BidResult{}, fmt.Errorf("place bid for auction %s: %w", auctionID, err)
	}

	entry := &laneEntry{
		auctionID:      auctionID,
		userID:         userID,
		amount:         amount,
		admissionPrice: snap.CurrentPrice,
		enqueuedAt:     e.clock(),
		done:           make(chan BidResult, 1),
	}
	return e.arbiter.Submit(entry), nil
}

// execute runs inside the auction's lane: re-fetch the committed snapshot,
// apply any due lifecycle transition, re-validate, and commit.
func (e *Engine) execute(entry *laneEntry) BidResult {
	ctx := context.Background()

	snap, err := e.sm.Load(ctx, entry.auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrAuctionNotFound) {
			return rejected(auctionerrors.ReasonUnknownAuction, "no such auction", model.Snapshot{})
		}
		return e.systemError(entry, err)
	}

	now := e.clock()
	if snap.Status == model.StatusUpcoming && !now.Before(snap.StartTime) {
		if next, err := e.sm.Activate(ctx, entry.auctionID); err == nil {
			snap = next
		}
	}
	if snap.Status == model.StatusLive && !now.Before(snap.EndTime) {
		if next, err := e.sm.End(ctx, entry.auctionID); err == nil {
			snap = next
		}
	}

	bidder, err := e.bidderContext(ctx, snap, entry.userID)
	if err != nil {
		return e.systemError(entry, err)
	}

	if rej := Validate(snap, bidder, entry.amount, now); rej != nil {
		// a bid that cleared the increment bar against its admission
		// snapshot lost a race, not a validity check
		if rej.Reason == auctionerrors.ReasonBelowMinIncrement &&
			!snap.CurrentPrice.Equal(entry.admissionPrice) &&
			entry.amount.GreaterThanOrEqual(entry.admissionPrice.Add(snap.MinIncrement)) {
			return rejected(auctionerrors.ReasonSuperseded, "outbid while queued", snap)
		}
		return rejected(rej.Reason, rej.Detail, snap)
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: entry.auctionID,
		UserID:    entry.userID,
		Amount:    entry.amount,
		CreatedAt: entry.enqueuedAt,
	}

	next, err := e.sm.ApplyBid(ctx, bid)
	if err != nil {
		if reason, ok := auctionerrors.ReasonOf(err); ok {
			return rejected(reason, err.Error(), next)
		}
		return e.systemError(entry, err)
	}

	// zero time remaining after the commit closes the auction immediately
	if !e.clock().Before(next.EndTime) {
		if ended, err := e.sm.End(ctx, entry.auctionID); err == nil {
			next = ended
		}
	}

	return BidResult{Accepted: true, Bid: next.WinningBid, Snapshot: next}
}

// bidderContext assembles the validator's view of the bidder. For team
// drafts the committed spend and squad size are derived from the store's lot
// ledger so the store stays the single durability authority.
func (e *Engine) bidderContext(ctx context.Context, snap model.Snapshot, userID string) (model.BidderContext, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return model.BidderContext{}, fmt.Errorf("resolve bidder %s: %w", userID, err)
	}

	bidder := model.BidderContext{
		UserID:       userID,
		Wallet:       user.Wallet,
		SpentInDraft: decimal.Zero,
	}
	if snap.Type == model.TypeTeamDraft && snap.Draft != nil {
		lots, err := e.store.WonLots(ctx, snap.Draft.DraftID, userID)
		if err != nil {
			return model.BidderContext{}, fmt.Errorf("resolve draft spend for %s: %w", userID, err)
		}
		for _, lot := range lots {
			bidder.SpentInDraft = bidder.SpentInDraft.Add(lot.Price)
		}
		bidder.SquadSize = len(lots)
	}
	return bidder, nil
}

// CreateAuction validates a definition and stores it UPCOMING with the
// current price pinned to the starting price.
func (e *Engine) CreateAuction(ctx context.Context, a model.Auction) (model.Auction, error) {
	core := a.Core()
	if core.AuctionID == "" || core.CreatorID == "" {
		return nil, fmt.Errorf("create auction: %w - missing id or creator", auctionerrors.ErrInvalidAuction)
	}
	if core.StartingPrice.IsNegative() || core.MinIncrement.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("create auction %s: %w - bad pricing", core.AuctionID, auctionerrors.ErrInvalidAuction)
	}
	if !core.EndTime.After(core.StartTime) {
		return nil, fmt.Errorf("create auction %s: %w - end time not after start time", core.AuctionID, auctionerrors.ErrInvalidAuction)
	}
	if draft, ok := a.(model.TeamDraftAuction); ok {
		if draft.DraftID == "" || draft.TeamBudget.LessThanOrEqual(decimal.Zero) ||
			draft.MaxSquadSize <= 0 || draft.MinSquadSize > draft.MaxSquadSize {
			return nil, fmt.Errorf("create auction %s: %w - bad draft settings", core.AuctionID, auctionerrors.ErrInvalidAuction)
		}
	}

	core.Status = model.StatusUpcoming
	core.CurrentPrice = core.StartingPrice
	normalized := withCore(a, core)
	if err := e.store.CreateAuction(ctx, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// Activate explicitly flips an UPCOMING auction to LIVE ahead of schedule
func (e *Engine) Activate(ctx context.Context, auctionID string) (model.Snapshot, error) {
	if _, err := e.sm.Load(ctx, auctionID); err != nil {
		return model.Snapshot{}, err
	}
	return e.sm.Activate(ctx, auctionID)
}

// ForceClose ends a live auction early. Only the creator may do it.
func (e *Engine) ForceClose(ctx context.Context, auctionID, requesterID string) (model.Snapshot, error) {
	snap, err := e.sm.Load(ctx, auctionID)
	if err != nil {
		return model.Snapshot{}, err
	}
	if snap.CreatorID != requesterID {
		return snap, fmt.Errorf("close auction %s: %w", auctionID, auctionerrors.ErrNotCreator)
	}

	ended, err := e.sm.End(ctx, auctionID)
	if err != nil {
		return ended, err
	}
	e.arbiter.Retire(auctionID)
	return ended, nil
}

// Snapshot returns the auction's current committed snapshot
func (e *Engine) Snapshot(ctx context.Context, auctionID string) (model.Snapshot, error) {
	return e.sm.Load(ctx, auctionID)
}

// Bids returns all bids for an auction in commit order
func (e *Engine) Bids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	return e.store.BidsByAuction(ctx, auctionID)
}

// RecordView stores a view-tracking entry; failures are logged, never fatal
func (e *Engine) RecordView(ctx context.Context, userID, auctionID string) {
	if err := e.store.RecordView(ctx, userID, auctionID); err != nil {
		utils.Warn("failed to record auction view", map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"error":      err.Error(),
		})
	}
}

// sweepLifecycles applies due time-based transitions across the store
func (e *Engine) sweepLifecycles() {
	ctx := context.Background()
	now := e.clock()

	upcoming, err := e.store.AuctionsByStatus(ctx, model.StatusUpcoming)
	if err != nil {
		utils.Warn("lifecycle sweep: listing upcoming auctions failed", map[string]any{"error": err.Error()})
	}
	for _, a := range upcoming {
		core := a.Core()
		if now.Before(core.StartTime) {
			continue
		}
		if _, err := e.sm.Load(ctx, core.AuctionID); err != nil {
			continue
		}
		if _, err := e.sm.Activate(ctx, core.AuctionID); err != nil && !errors.Is(err, auctionerrors.ErrInvalidTransition) {
			utils.Warn("lifecycle sweep: activation failed", map[string]any{
				"auction_id": core.AuctionID,
				"error":      err.Error(),
			})
		}
	}

	live, err := e.store.AuctionsByStatus(ctx, model.StatusLive)
	if err != nil {
		utils.Warn("lifecycle sweep: listing live auctions failed", map[string]any{"error": err.Error()})
	}
	for _, a := range live {
		core := a.Core()
		if now.Before(core.EndTime) {
			continue
		}
		if _, err := e.sm.Load(ctx, core.AuctionID); err != nil {
			continue
		}
		if _, err := e.sm.End(ctx, core.AuctionID); err != nil {
			if !errors.Is(err, auctionerrors.ErrInvalidTransition) {
				utils.Warn("lifecycle sweep: close failed", map[string]any{
					"auction_id": core.AuctionID,
					"error":      err.Error(),
				})
			}
			continue
		}
		e.arbiter.Retire(core.AuctionID)
	}
}

func (e *Engine) systemError(entry *laneEntry, err error) BidResult {
	utils.Error("bid processing failed", map[string]any{
		"auction_id": entry.auctionID,
		"user_id":    entry.userID,
		"error":      err.Error(),
	})
	return rejected(auctionerrors.ReasonSystemError, "internal error processing bid", model.Snapshot{})
}

func rejected(reason auctionerrors.Reason, detail string, snap model.Snapshot) BidResult {
	return BidResult{Accepted: false, Reason: reason, Detail: detail, Snapshot: snap}
}

// withCore returns a copy of the auction with its core replaced
func withCore(a model.Auction, core model.AuctionCore) model.Auction {
	switch v := a.(type) {
	case model.SingleItemAuction:
		v.AuctionCore = core
		return v
	case model.TeamDraftAuction:
		v.AuctionCore = core
		return v
	}
	return a
}
