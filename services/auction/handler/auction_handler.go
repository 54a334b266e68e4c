package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/auctionerrors"
	"auction-engine/internal/engine"
	model "auction-engine/internal/models"
	"auction-engine/services/auction/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// EngineInterface is the slice of the bidding engine the HTTP layer uses
type EngineInterface interface {
	PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (engine.BidResult, error)
	CreateAuction(ctx context.Context, a model.Auction) (model.Auction, error)
	Activate(ctx context.Context, auctionID string) (model.Snapshot, error)
	ForceClose(ctx context.Context, auctionID, requesterID string) (model.Snapshot, error)
	Snapshot(ctx context.Context, auctionID string) (model.Snapshot, error)
	Bids(ctx context.Context, auctionID string) ([]model.Bid, error)
}

type AuctionHandler struct {
	engine EngineInterface
}

func NewAuctionHandler(eng EngineInterface) *AuctionHandler {
	return &AuctionHandler{engine: eng}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := auctionFromRequest(req)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err, "invalid auction definition")
		utils.Warn("CreateAuctionHandler: bad definition", map[string]any{"error": err.Error()})
		return
	}

	created, err := h.engine.CreateAuction(c.Request.Context(), auction)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateAuctionHandler: failed to create auction", map[string]any{
			"creator_id": req.CreatorID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, created, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": created.Core().AuctionID,
		"type":       string(created.Type()),
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		utils.JSONError(c, http.StatusBadRequest, err, "malformed bid amount")
		return
	}

	res, err := h.engine.PlaceBid(c.Request.Context(), auctionID, req.UserID, amount)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"auction_id": auctionID,
			"user_id":    req.UserID,
			"error":      err.Error(),
		})
		return
	}

	resp := helpers.BidResultResponse{
		Accepted:     res.Accepted,
		Reason:       string(res.Reason),
		Detail:       res.Detail,
		CurrentPrice: res.Snapshot.CurrentPrice.String(),
		Seq:          res.Snapshot.Seq,
	}
	if res.Bid != nil {
		resp.Bid = helpers.BidToResponse(*res.Bid)
	}

	if !res.Accepted {
		utils.JSONResponse(c, helpers.StatusForReason(res.Reason), resp, "bid rejected")
		utils.Info("PlaceBidHandler: bid rejected", map[string]any{
			"auction_id": auctionID,
			"user_id":    req.UserID,
			"reason":     string(res.Reason),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, resp, "bid accepted")
	helpers.LogSuccess("PlaceBidHandler", "bid accepted", map[string]any{
		"auction_id": auctionID,
		"user_id":    req.UserID,
		"amount":     amount.String(),
	})
}

// ActivateAuctionHandler handles POST /auctions/:auction_id/activate
func (h *AuctionHandler) ActivateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	snap, err := h.engine.Activate(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("ActivateAuctionHandler: activation failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, snap, "auction activated")
	helpers.LogSuccess("ActivateAuctionHandler", "auction activated", map[string]any{"auction_id": auctionID})
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.CloseAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CloseAuctionHandler", err)
		return
	}

	snap, err := h.engine.ForceClose(c.Request.Context(), auctionID, req.RequesterID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("CloseAuctionHandler: close failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, snap, "auction closed")
	helpers.LogSuccess("CloseAuctionHandler", "auction closed", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	snap, err := h.engine.Snapshot(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, snap, "auction retrieved successfully")
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	bids, err := h.engine.Bids(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsHandler: error retrieving bids", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	resp := make([]*helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.BidToResponse(b))
	}
	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *AuctionHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	snap, err := h.engine.Snapshot(c.Request.Context(), auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetWinningBidHandler: error retrieving auction", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	if snap.WinningBid == nil {
		utils.JSONError(c, http.StatusNotFound, auctionerrors.ErrNoBids, "no winning bid found")
		utils.Info("GetWinningBidHandler: no winning bid", map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.BidToResponse(*snap.WinningBid), "winning bid retrieved successfully")
}

// auctionFromRequest builds the typed auction variant from the wire form
func auctionFromRequest(req helpers.CreateAuctionRequest) (model.Auction, error) {
	starting, err := decimal.NewFromString(req.StartingPrice)
	if err != nil {
		return nil, fmt.Errorf("parse starting_price: %w", err)
	}
	increment, err := decimal.NewFromString(req.MinIncrement)
	if err != nil {
		return nil, fmt.Errorf("parse min_increment: %w", err)
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	core := model.AuctionCore{
		AuctionID:     utils.GenerateID(),
		Status:        model.StatusUpcoming,
		CreatorID:     req.CreatorID,
		Currency:      currency,
		StartingPrice: starting,
		MinIncrement:  increment,
		CurrentPrice:  starting,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	}

	switch model.AuctionType(req.Type) {
	case model.TypeTeamDraft:
		budget, err := decimal.NewFromString(req.TeamBudget)
		if err != nil {
			return nil, fmt.Errorf("parse team_budget: %w", err)
		}
		return model.TeamDraftAuction{
			AuctionCore:  core,
			DraftID:      req.DraftID,
			LotName:      req.LotName,
			TeamBudget:   budget,
			MinSquadSize: req.MinSquadSize,
			MaxSquadSize: req.MaxSquadSize,
		}, nil
	case model.TypeSingleItem:
		return model.SingleItemAuction{
			AuctionCore: core,
			Title:       req.Title,
			Description: req.Description,
		}, nil
	default:
		return nil, errors.New("unknown auction type " + req.Type)
	}
}
