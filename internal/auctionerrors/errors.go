package auctionerrors

import "errors"

// Reason is the closed set of machine-readable outcomes reported to bidders
type Reason string

const (
	ReasonAuctionNotLive    Reason = "AUCTION_NOT_LIVE"
	ReasonAuctionExpired    Reason = "AUCTION_EXPIRED"
	ReasonSelfBid           Reason = "SELF_BID"
	ReasonBelowMinIncrement Reason = "BELOW_MINIMUM_INCREMENT"
	ReasonInsufficientFunds Reason = "INSUFFICIENT_FUNDS"
	ReasonBudgetExceeded    Reason = "BUDGET_EXCEEDED"
	ReasonSquadFull         Reason = "SQUAD_FULL"
	ReasonUnknownAuction    Reason = "UNKNOWN_AUCTION"

	// ReasonSuperseded means the bid was valid against the snapshot it was
	// submitted under, but a concurrent commit invalidated it.
	ReasonSuperseded Reason = "SUPERSEDED"

	// ReasonTimeout is the lane backpressure signal; safe to resubmit
	ReasonTimeout Reason = "TIMEOUT"

	// ReasonSystemError is a persist failure that survived the retry
	ReasonSystemError Reason = "SYSTEM_ERROR"
)

// Rejection is a bid turned down for an enumerated reason. It is client
// feedback, not a system failure.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}

// Reject builds a Rejection with an optional human-readable detail
func Reject(reason Reason, detail string) *Rejection {
	return &Rejection{Reason: reason, Detail: detail}
}

// ReasonOf extracts the rejection reason from an error chain
func ReasonOf(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// Store-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNoBids          = errors.New("no bids found for auction")

	// ErrPriceConflict is the store's conditional-update fence: the stored
	// current price no longer matches the snapshot the commit was built from.
	ErrPriceConflict = errors.New("current price changed since snapshot")

	// ErrStoreTransient marks a persist failure worth one retry
	ErrStoreTransient = errors.New("transient store failure")
)

// Lifecycle errors
var (
	ErrInvalidTransition = errors.New("invalid auction status transition")
	ErrNotCreator        = errors.New("only the auction creator may do this")
	ErrInvalidAuction    = errors.New("invalid auction definition")
	ErrInvalidBid        = errors.New("invalid bid")
)
