package helpers

import "time"

// Request/Response DTOs. Money fields travel as decimal strings.

type CreateAuctionRequest struct {
	Type          string    `json:"type" binding:"required,oneof=SINGLE_ITEM TEAM_DRAFT"`
	CreatorID     string    `json:"creator_id" binding:"required"`
	Currency      string    `json:"currency"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	DraftID       string    `json:"draft_id"`
	LotName       string    `json:"lot_name"`
	TeamBudget    string    `json:"team_budget"`
	MinSquadSize  int       `json:"min_squad_size"`
	MaxSquadSize  int       `json:"max_squad_size"`
	StartingPrice string    `json:"starting_price" binding:"required"`
	MinIncrement  string    `json:"min_increment" binding:"required"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
}

type PlaceBidRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type CloseAuctionRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	CreatedAt string `json:"created_at"`
}

type BidResultResponse struct {
	Accepted     bool         `json:"accepted"`
	Reason       string       `json:"reason,omitempty"`
	Detail       string       `json:"detail,omitempty"`
	Bid          *BidResponse `json:"bid,omitempty"`
	CurrentPrice string       `json:"current_price"`
	Seq          uint64       `json:"seq"`
}
