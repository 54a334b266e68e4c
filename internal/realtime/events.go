package realtime

import (
	"time"

	model "auction-engine/internal/models"
)

// Wire message types form a closed set. Client to server:
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypeBid   = "bid"
)

// Server to client:
const (
	TypeSnapshot     = "snapshot"
	TypeBidCommitted = "bid_committed"
	TypeBidResult    = "bid_result"
	TypeAuctionEnded = "auction_ended"
	TypeError        = "error"
)

// ClientMessage is what a connection sends us. Amount is a decimal string.
type ClientMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	Amount    string `json:"amount,omitempty"`
}

// Envelope is the single server-to-client frame. Exactly one payload field
// is set, matching Type. Seq carries the auction's commit sequence so
// clients can detect gaps and drop duplicates.
type Envelope struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auction_id,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Snapshot  *model.Snapshot `json:"snapshot,omitempty"`
	Bid       *model.Bid      `json:"bid,omitempty"`
	Result    *BidResultEvent `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// BidResultEvent is the private outcome delivered to the submitting
// connection, subscribed or not.
type BidResultEvent struct {
	Accepted     bool   `json:"accepted"`
	Reason       string `json:"reason,omitempty"`
	Detail       string `json:"detail,omitempty"`
	BidID        string `json:"bid_id,omitempty"`
	CurrentPrice string `json:"current_price"`
}

func snapshotEnvelope(snap model.Snapshot, now time.Time) Envelope {
	s := snap
	return Envelope{
		Type:      TypeSnapshot,
		AuctionID: snap.AuctionID,
		Seq:       snap.Seq,
		Timestamp: now,
		Snapshot:  &s,
	}
}

func bidCommittedEnvelope(snap model.Snapshot, bid model.Bid, now time.Time) Envelope {
	b := bid
	s := snap
	return Envelope{
		Type:      TypeBidCommitted,
		AuctionID: snap.AuctionID,
		Seq:       snap.Seq,
		Timestamp: now,
		Snapshot:  &s,
		Bid:       &b,
	}
}

func auctionEndedEnvelope(snap model.Snapshot, now time.Time) Envelope {
	s := snap
	return Envelope{
		Type:      TypeAuctionEnded,
		AuctionID: snap.AuctionID,
		Seq:       snap.Seq,
		Timestamp: now,
		Snapshot:  &s,
	}
}

func errorEnvelope(auctionID, detail string, now time.Time) Envelope {
	return Envelope{
		Type:      TypeError,
		AuctionID: auctionID,
		Timestamp: now,
		Error:     detail,
	}
}
