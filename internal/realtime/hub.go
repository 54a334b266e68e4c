package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"auction-engine/internal/engine"
	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// EngineAPI is the slice of the bidding engine the realtime layer needs
type EngineAPI interface {
	PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (engine.BidResult, error)
	Snapshot(ctx context.Context, auctionID string) (model.Snapshot, error)
	RecordView(ctx context.Context, userID, auctionID string)
}

// Options tunes connection handling
type Options struct {
	SendBufferSize int           // outbound frames buffered per connection
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

func (o *Options) withDefaults() {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
}

// Hub is the auction session registry and broadcast fanout in one lifecycle-
// scoped instance: it tracks which connections subscribe to which auctions
// and delivers committed events to them in commit order. It implements
// engine.Publisher; the state machine calls the Publish methods while
// holding the auction's lock, which is what preserves per-auction ordering.
type Hub struct {
	engine EngineAPI
	opts   Options

	mu     sync.RWMutex
	subs   map[string]map[*Client]struct{} // auctionID -> subscribers
	closed bool
}

// NewHub creates a registry bound to an engine instance
func NewHub(eng EngineAPI, opts Options) *Hub {
	opts.withDefaults()
	return &Hub{
		engine: eng,
		opts:   opts,
		subs:   make(map[string]map[*Client]struct{}),
	}
}

// Join subscribes the connection to an auction's channel and immediately
// queues a full state snapshot, so a viewer joining mid-auction cannot miss
// state from before its subscription. The subscription is registered first;
// the snapshot's seq lets the client discard any older queued event.
func (h *Hub) Join(ctx context.Context, c *Client, auctionID string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	set, ok := h.subs[auctionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subs[auctionID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	snap, err := h.engine.Snapshot(ctx, auctionID)
	if err != nil {
		h.Leave(c, auctionID)
		return err
	}
	c.deliver(snapshotEnvelope(snap, time.Now().UTC()))
	h.engine.RecordView(ctx, c.userID, auctionID)
	return nil
}

// Leave unsubscribes the connection from one auction
func (h *Hub) Leave(c *Client, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[auctionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, auctionID)
		}
	}
}

// Disconnect removes the connection from every subscriber set. Called on
// clean close and on abrupt network loss alike (the read pump detects both).
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for auctionID, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, auctionID)
		}
	}
	c.close()
}

// PublishBidCommitted fans a committed bid out to the auction's subscribers
func (h *Hub) PublishBidCommitted(snap model.Snapshot, bid model.Bid) {
	h.broadcast(snap.AuctionID, bidCommittedEnvelope(snap, bid, time.Now().UTC()))
}

// PublishAuctionEnded emits the terminal event and drops the subscriber set;
// nothing further is sent for the auction.
func (h *Hub) PublishAuctionEnded(snap model.Snapshot) {
	h.broadcast(snap.AuctionID, auctionEndedEnvelope(snap, time.Now().UTC()))

	h.mu.Lock()
	delete(h.subs, snap.AuctionID)
	h.mu.Unlock()
}

// Close tears the registry down, closing every connection
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make(map[*Client]struct{})
	for _, set := range h.subs {
		for c := range set {
			clients[c] = struct{}{}
		}
	}
	h.subs = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) broadcast(auctionID string, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		utils.Error("failed to marshal broadcast event", map[string]any{
			"auction_id": auctionID,
			"type":       env.Type,
			"error":      err.Error(),
		})
		return
	}

	h.mu.RLock()
	set := h.subs[auctionID]
	stalled := make([]*Client, 0)
	for c := range set {
		if !c.trySend(data) {
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	// a subscriber that cannot drain its buffer would break the ordering
	// guarantee for itself; drop it rather than block the lane
	for _, c := range stalled {
		utils.Warn("dropping slow subscriber", map[string]any{
			"auction_id": auctionID,
			"user_id":    c.userID,
		})
		h.Disconnect(c)
	}
}
