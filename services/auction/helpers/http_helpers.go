package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/engine errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, auctionerrors.ErrInvalidAuction):
		return http.StatusBadRequest, "invalid auction definition"
	case errors.Is(err, auctionerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, auctionerrors.ErrInvalidTransition):
		return http.StatusConflict, "auction is not in a state that allows this"
	case errors.Is(err, auctionerrors.ErrNotCreator):
		return http.StatusForbidden, "only the auction creator may do this"
	case errors.Is(err, auctionerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// StatusForReason maps a bid rejection reason to an HTTP status
func StatusForReason(reason auctionerrors.Reason) int {
	switch reason {
	case auctionerrors.ReasonUnknownAuction:
		return http.StatusNotFound
	case auctionerrors.ReasonTimeout:
		return http.StatusTooManyRequests
	case auctionerrors.ReasonSystemError:
		return http.StatusInternalServerError
	default:
		// validation outcomes and lost races
		return http.StatusConflict
	}
}

// BidToResponse converts a bid to its wire form
func BidToResponse(b model.Bid) *BidResponse {
	return &BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    b.Amount.String(),
		IsWinning: b.IsWinning,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
