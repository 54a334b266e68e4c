package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionType distinguishes the two supported auction formats
type AuctionType string

const (
	TypeSingleItem AuctionType = "SINGLE_ITEM"
	TypeTeamDraft  AuctionType = "TEAM_DRAFT"
)

// AuctionStatus is the lifecycle state of an auction. Transitions are one-way:
// UPCOMING -> LIVE -> ENDED.
type AuctionStatus string

const (
	StatusUpcoming AuctionStatus = "UPCOMING"
	StatusLive     AuctionStatus = "LIVE"
	StatusEnded    AuctionStatus = "ENDED"
)

// AuctionCore holds the fields common to both auction variants
type AuctionCore struct {
	AuctionID     string          `json:"auction_id"`
	Status        AuctionStatus   `json:"status"`
	CreatorID     string          `json:"creator_id"`
	Currency      string          `json:"currency"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	MinIncrement  decimal.Decimal `json:"min_increment"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

// Auction is the closed union of auction variants. Only SingleItemAuction and
// TeamDraftAuction implement it.
type Auction interface {
	Type() AuctionType
	Core() AuctionCore
}

// SingleItemAuction is a plain ascending-price auction on one item
type SingleItemAuction struct {
	AuctionCore
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (a SingleItemAuction) Type() AuctionType { return TypeSingleItem }
func (a SingleItemAuction) Core() AuctionCore { return a.AuctionCore }

// TeamDraftAuction is one lot inside a team-budget draft. Lots belonging to
// the same draft share a DraftID; a bidder's spend across won lots of that
// draft may not exceed TeamBudget.
type TeamDraftAuction struct {
	AuctionCore
	DraftID      string          `json:"draft_id"`
	LotName      string          `json:"lot_name"`
	TeamBudget   decimal.Decimal `json:"team_budget"`
	MinSquadSize int             `json:"min_squad_size"`
	MaxSquadSize int             `json:"max_squad_size"`
}

func (a TeamDraftAuction) Type() AuctionType { return TypeTeamDraft }
func (a TeamDraftAuction) Core() AuctionCore { return a.AuctionCore }

// DraftInfo is the team-draft portion of a snapshot; nil for SINGLE_ITEM
type DraftInfo struct {
	DraftID      string          `json:"draft_id"`
	TeamBudget   decimal.Decimal `json:"team_budget"`
	MinSquadSize int             `json:"min_squad_size"`
	MaxSquadSize int             `json:"max_squad_size"`
}

// Snapshot is an immutable point-in-time copy of one auction's committed
// state. Seq increases by one per committed mutation, so consumers can order
// and de-duplicate what they observe.
type Snapshot struct {
	AuctionID     string          `json:"auction_id"`
	Type          AuctionType     `json:"type"`
	Status        AuctionStatus   `json:"status"`
	CreatorID     string          `json:"creator_id"`
	Currency      string          `json:"currency"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	MinIncrement  decimal.Decimal `json:"min_increment"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	WinningBid    *Bid            `json:"winning_bid,omitempty"`
	Draft         *DraftInfo      `json:"draft,omitempty"`
	Seq           uint64          `json:"seq"`
}

// SnapshotOf builds a snapshot for a loaded auction and its winning bid
func SnapshotOf(a Auction, winning *Bid, seq uint64) Snapshot {
	core := a.Core()
	snap := Snapshot{
		AuctionID:     core.AuctionID,
		Type:          a.Type(),
		Status:        core.Status,
		CreatorID:     core.CreatorID,
		Currency:      core.Currency,
		StartingPrice: core.StartingPrice,
		MinIncrement:  core.MinIncrement,
		CurrentPrice:  core.CurrentPrice,
		StartTime:     core.StartTime,
		EndTime:       core.EndTime,
		WinningBid:    winning,
		Seq:           seq,
	}
	if draft, ok := a.(TeamDraftAuction); ok {
		snap.Draft = &DraftInfo{
			DraftID:      draft.DraftID,
			TeamBudget:   draft.TeamBudget,
			MinSquadSize: draft.MinSquadSize,
			MaxSquadSize: draft.MaxSquadSize,
		}
	}
	return snap
}

// Bid represents a user's bid on an auction. Immutable once created except
// for IsWinning, which the state machine flips as later bids supersede it.
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	IsWinning bool            `json:"is_winning"`
}

// User represents a participant in the auction platform
type User struct {
	UserID      string          `json:"user_id"`
	Username    string          `json:"username"`
	Wallet      decimal.Decimal `json:"wallet"`
	TotalBudget decimal.Decimal `json:"total_budget"`
}

// LotResult is a closed team-draft lot: who won it and at what price
type LotResult struct {
	DraftID   string          `json:"draft_id"`
	AuctionID string          `json:"auction_id"`
	WinnerID  string          `json:"winner_id"`
	Price     decimal.Decimal `json:"price"`
	ClosedAt  time.Time       `json:"closed_at"`
}

// AuctionView records that a user looked at an auction. Analytics only; the
// bidding path never reads it.
type AuctionView struct {
	UserID       string    `json:"user_id"`
	AuctionID    string    `json:"auction_id"`
	LastViewedAt time.Time `json:"last_viewed_at"`
}

// BidderContext is everything the validator needs to know about the bidder,
// assembled by the engine before validation so the validator stays pure.
type BidderContext struct {
	UserID       string
	Wallet       decimal.Decimal
	SpentInDraft decimal.Decimal // sum of won-lot prices in this draft
	SquadSize    int             // lots already won in this draft
}
