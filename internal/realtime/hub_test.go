package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/engine"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// stubEngine satisfies EngineAPI with canned responses
type stubEngine struct {
	mu      sync.Mutex
	snap    model.Snapshot
	snapErr error
	result  engine.BidResult
	views   []string
	bids    []string
}

func (s *stubEngine) PlaceBid(_ context.Context, auctionID, userID string, amount decimal.Decimal) (engine.BidResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bids = append(s.bids, userID+"/"+auctionID+"/"+amount.String())
	return s.result, nil
}

func (s *stubEngine) Snapshot(context.Context, string) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.snapErr
}

func (s *stubEngine) RecordView(_ context.Context, userID, auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, userID+"/"+auctionID)
}

func (s *stubEngine) recordedViews() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.views...)
}

func liveSnapshot(seq uint64) model.Snapshot {
	return model.Snapshot{
		AuctionID:     "auction1",
		Type:          model.TypeSingleItem,
		Status:        model.StatusLive,
		CreatorID:     "creator",
		Currency:      "USD",
		StartingPrice: decimal.NewFromInt(100),
		MinIncrement:  decimal.NewFromInt(10),
		CurrentPrice:  decimal.NewFromInt(100),
		StartTime:     time.Now().UTC().Add(-time.Minute),
		EndTime:       time.Now().UTC().Add(time.Hour),
		Seq:           seq,
	}
}

// nextFrame pops one queued frame off the client's send buffer
func nextFrame(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return Envelope{}
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame queued: %s", data)
	default:
	}
}

func TestHub_JoinDeliversSnapshotAndRecordsView(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(7)}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	require.NoError(t, hub.Join(context.Background(), c, "auction1"))

	env := nextFrame(t, c)
	require.Equal(t, TypeSnapshot, env.Type)
	require.Equal(t, "auction1", env.AuctionID)
	require.Equal(t, uint64(7), env.Seq)
	require.NotNil(t, env.Snapshot)
	require.Equal(t, model.StatusLive, env.Snapshot.Status)

	require.Equal(t, []string{"user1/auction1"}, eng.recordedViews())
}

func TestHub_JoinFailureUnsubscribes(t *testing.T) {
	eng := &stubEngine{snapErr: errors.New("no such auction")}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	require.Error(t, hub.Join(context.Background(), c, "ghost"))

	// a failed join must not leave a dangling subscription
	hub.PublishBidCommitted(liveSnapshot(1), model.Bid{AuctionID: "ghost"})
	requireNoFrame(t, c)
}

func TestHub_BroadcastReachesSubscribersInOrder(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{})
	c1 := newClient(hub, nil, "user1")
	c2 := newClient(hub, nil, "user2")

	require.NoError(t, hub.Join(context.Background(), c1, "auction1"))
	require.NoError(t, hub.Join(context.Background(), c2, "auction1"))
	nextFrame(t, c1) // initial snapshots
	nextFrame(t, c2)

	for seq := uint64(1); seq <= 3; seq++ {
		snap := liveSnapshot(seq)
		snap.CurrentPrice = decimal.NewFromInt(int64(100 + 10*seq))
		hub.PublishBidCommitted(snap, model.Bid{
			BidID:     "bid",
			AuctionID: "auction1",
			UserID:    "bidder",
			Amount:    snap.CurrentPrice,
			IsWinning: true,
		})
	}

	for _, c := range []*Client{c1, c2} {
		for seq := uint64(1); seq <= 3; seq++ {
			env := nextFrame(t, c)
			require.Equal(t, TypeBidCommitted, env.Type)
			require.Equal(t, seq, env.Seq)
			require.NotNil(t, env.Bid)
		}
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	require.NoError(t, hub.Join(context.Background(), c, "auction1"))
	nextFrame(t, c)

	hub.Leave(c, "auction1")
	hub.PublishBidCommitted(liveSnapshot(1), model.Bid{AuctionID: "auction1"})
	requireNoFrame(t, c)
}

func TestHub_DisconnectRemovesFromAllAuctions(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	require.NoError(t, hub.Join(context.Background(), c, "auction1"))
	require.NoError(t, hub.Join(context.Background(), c, "auction2"))
	nextFrame(t, c)
	nextFrame(t, c)

	hub.Disconnect(c)

	select {
	case <-c.done:
	default:
		t.Fatal("disconnect did not close the client")
	}

	hub.PublishBidCommitted(liveSnapshot(1), model.Bid{AuctionID: "auction1"})
	requireNoFrame(t, c)
}

func TestHub_AuctionEndedIsTerminal(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	require.NoError(t, hub.Join(context.Background(), c, "auction1"))
	nextFrame(t, c)

	ended := liveSnapshot(5)
	ended.Status = model.StatusEnded
	hub.PublishAuctionEnded(ended)

	env := nextFrame(t, c)
	require.Equal(t, TypeAuctionEnded, env.Type)
	require.Equal(t, uint64(5), env.Seq)
	require.Equal(t, model.StatusEnded, env.Snapshot.Status)

	// nothing is delivered for the auction after the terminal event
	hub.PublishBidCommitted(liveSnapshot(6), model.Bid{AuctionID: "auction1"})
	requireNoFrame(t, c)
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{SendBufferSize: 1})
	c := newClient(hub, nil, "user1")

	require.NoError(t, hub.Join(context.Background(), c, "auction1"))

	// the snapshot fills the one-slot buffer; the next broadcast cannot be
	// queued and must cost the subscriber its connection
	hub.PublishBidCommitted(liveSnapshot(1), model.Bid{AuctionID: "auction1"})

	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("slow subscriber was not dropped")
	}
}

func TestHub_CloseClosesEveryClient(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{})
	c1 := newClient(hub, nil, "user1")
	c2 := newClient(hub, nil, "user2")

	require.NoError(t, hub.Join(context.Background(), c1, "auction1"))
	require.NoError(t, hub.Join(context.Background(), c2, "auction2"))

	hub.Close()

	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.done:
		default:
			t.Fatal("close did not reach every client")
		}
	}

	// joins after close are refused silently
	c3 := newClient(hub, nil, "user3")
	require.NoError(t, hub.Join(context.Background(), c3, "auction1"))
	requireNoFrame(t, c3)
}
