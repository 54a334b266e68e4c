package engine

import (
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Validate decides whether a proposed bid is acceptable against a committed
// snapshot. Pure: no locks, no side effects, so the arbiter can call it both
// at admission and again inside the lane. A nil result means accept.
func Validate(snap model.Snapshot, bidder model.BidderContext, amount decimal.Decimal, now time.Time) *auctionerrors.Rejection {
	switch snap.Status {
	case model.StatusLive:
		// proceed
	case model.StatusEnded:
		return auctionerrors.Reject(auctionerrors.ReasonAuctionExpired, "auction has ended")
	default:
		return auctionerrors.Reject(auctionerrors.ReasonAuctionNotLive, "auction is not live")
	}

	if !now.Before(snap.EndTime) {
		return auctionerrors.Reject(auctionerrors.ReasonAuctionExpired, "auction end time reached")
	}

	if bidder.UserID == snap.CreatorID {
		return auctionerrors.Reject(auctionerrors.ReasonSelfBid, "creator may not bid on own auction")
	}

	minimum := snap.CurrentPrice.Add(snap.MinIncrement)
	if amount.LessThan(minimum) {
		return auctionerrors.Reject(auctionerrors.ReasonBelowMinIncrement,
			fmt.Sprintf("minimum acceptable bid is %s", minimum.String()))
	}

	if bidder.Wallet.LessThan(amount) {
		return auctionerrors.Reject(auctionerrors.ReasonInsufficientFunds,
			fmt.Sprintf("wallet balance %s is below bid amount", bidder.Wallet.String()))
	}

	if snap.Type == model.TypeTeamDraft && snap.Draft != nil {
		if bidder.SquadSize >= snap.Draft.MaxSquadSize {
			return auctionerrors.Reject(auctionerrors.ReasonSquadFull,
				fmt.Sprintf("squad already has %d of %d slots filled", bidder.SquadSize, snap.Draft.MaxSquadSize))
		}
		remaining := snap.Draft.TeamBudget.Sub(bidder.SpentInDraft)
		if remaining.LessThan(amount) {
			return auctionerrors.Reject(auctionerrors.ReasonBudgetExceeded,
				fmt.Sprintf("remaining team budget is %s", remaining.String()))
		}
	}

	return nil
}
