package realtime

import (
	"testing"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/engine"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClient_HandleBidDeliversPrivateResult(t *testing.T) {
	snap := liveSnapshot(1)
	snap.CurrentPrice = decimal.NewFromInt(110)
	eng := &stubEngine{
		result: engine.BidResult{
			Accepted: true,
			Bid:      &model.Bid{BidID: "bid1", AuctionID: "auction1", UserID: "user1"},
			Snapshot: snap,
		},
	}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	c.handle(ClientMessage{Type: TypeBid, AuctionID: "auction1", Amount: "110"})

	env := nextFrame(t, c)
	require.Equal(t, TypeBidResult, env.Type)
	require.Equal(t, "auction1", env.AuctionID)
	require.NotNil(t, env.Result)
	require.True(t, env.Result.Accepted)
	require.Equal(t, "bid1", env.Result.BidID)
	require.Equal(t, "110", env.Result.CurrentPrice)
}

func TestClient_HandleBidRejection(t *testing.T) {
	eng := &stubEngine{
		result: engine.BidResult{
			Accepted: false,
			Reason:   auctionerrors.ReasonBelowMinIncrement,
			Detail:   "bid must be at least 110",
			Snapshot: liveSnapshot(0),
		},
	}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	c.handle(ClientMessage{Type: TypeBid, AuctionID: "auction1", Amount: "105"})

	env := nextFrame(t, c)
	require.Equal(t, TypeBidResult, env.Type)
	require.False(t, env.Result.Accepted)
	require.Equal(t, string(auctionerrors.ReasonBelowMinIncrement), env.Result.Reason)
}

func TestClient_HandleMalformedAndUnknownMessages(t *testing.T) {
	eng := &stubEngine{snap: liveSnapshot(0)}
	hub := NewHub(eng, Options{})
	c := newClient(hub, nil, "user1")

	c.handle(ClientMessage{Type: TypeBid, AuctionID: "auction1", Amount: "not-a-number"})
	env := nextFrame(t, c)
	require.Equal(t, TypeError, env.Type)
	require.Contains(t, env.Error, "malformed bid amount")

	c.handle(ClientMessage{Type: "subscribe", AuctionID: "auction1"})
	env = nextFrame(t, c)
	require.Equal(t, TypeError, env.Type)
	require.Contains(t, env.Error, "unknown message type")
}
