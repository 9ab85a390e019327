package biddingerrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error categories. Every error returned by the services wraps exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("storage unavailable")
)

// Repository-level errors
var (
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrAuctionNotFound = fmt.Errorf("auction %w", ErrNotFound)
	ErrBidNotFound     = fmt.Errorf("bid %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrNoBids          = fmt.Errorf("no bids found for auction: %w", ErrNotFound)

	ErrAuctionExists = fmt.Errorf("product already has a live auction: %w", ErrConflict)
	ErrOrderExists   = fmt.Errorf("order already exists for bid: %w", ErrConflict)
	ErrStaleAuction  = fmt.Errorf("auction changed concurrently: %w", ErrConflict)
	ErrStaleOrder    = fmt.Errorf("order changed concurrently: %w", ErrConflict)
)

// business logic errors
var (
	ErrInvalidBid       = fmt.Errorf("invalid bid: %w", ErrInvalidInput)
	ErrBidTooLow        = fmt.Errorf("bid amount too low: %w", ErrInvalidInput)
	ErrInvalidTimeRange = fmt.Errorf("end time must be after start time: %w", ErrInvalidInput)
	ErrInvalidProduct   = fmt.Errorf("invalid product: %w", ErrInvalidInput)
	ErrInvalidOrder     = fmt.Errorf("invalid order update: %w", ErrInvalidInput)
	ErrAuctionNotActive = fmt.Errorf("auction is not active: %w", ErrInvalidState)
	ErrAuctionClosed    = fmt.Errorf("auction end time has passed: %w", ErrInvalidState)
	ErrAuctionTerminal  = fmt.Errorf("auction is already finished: %w", ErrInvalidState)
	ErrAuctionNotEnded  = fmt.Errorf("auction has not ended: %w", ErrInvalidState)
	ErrNoWinner         = fmt.Errorf("auction ended without a winner: %w", ErrInvalidState)
	ErrProductNotListed = fmt.Errorf("product can no longer be auctioned: %w", ErrConflict)
	ErrProductLive      = fmt.Errorf("product has a live auction: %w", ErrInvalidState)
	ErrOrderTransition  = fmt.Errorf("order status transition not allowed: %w", ErrInvalidState)
	ErrOwnBid           = fmt.Errorf("cannot bid on own product: %w", ErrForbidden)
	ErrNotOwner         = fmt.Errorf("caller does not own this resource: %w", ErrForbidden)
	ErrAdminOnly        = fmt.Errorf("admin role required: %w", ErrForbidden)
	ErrMissingIdentity  = fmt.Errorf("bidder identity required: %w", ErrInvalidInput)
)

// BidError is returned for every rejected bid. It carries the auction's
// authoritative status and price at the time of rejection so the caller
// can retry with a corrected amount.
type BidError struct {
	Reason       error
	Status       string
	CurrentPrice decimal.Decimal
}

func (e *BidError) Error() string {
	return fmt.Sprintf("bid rejected: %v (auction status %s, current price %s)", e.Reason, e.Status, e.CurrentPrice.StringFixed(2))
}

func (e *BidError) Unwrap() error {
	return e.Reason
}
