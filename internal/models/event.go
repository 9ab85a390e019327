package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventAuctionStarted   EventType = "auction_started"
	EventAuctionEnded     EventType = "auction_ended"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventBidPlaced        EventType = "bid_placed"
	EventBidDeleted       EventType = "bid_deleted"
	EventOrderCreated     EventType = "order_created"
)

// Event is emitted on auction state changes and fanned out to subscribers
type Event struct {
	Type         EventType       `json:"type"`
	AuctionID    string          `json:"auction_id"`
	ProductID    string          `json:"product_id,omitempty"`
	OwnerID      string          `json:"owner_id,omitempty"`
	WinnerID     *string         `json:"winner_id,omitempty"`
	WinningBidID *string         `json:"winning_bid_id,omitempty"`
	BidID        string          `json:"bid_id,omitempty"`
	OrderID      string          `json:"order_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// HasWinner reports whether an auction_ended event carries a winner.
func (e Event) HasWinner() bool {
	return e.Type == EventAuctionEnded && e.WinnerID != nil && e.WinningBidID != nil
}

// AuctionTopic is the fan-out topic for events about one auction.
func AuctionTopic(auctionID string) string {
	return "auction:" + auctionID
}

// UserTopic is the fan-out topic for notifications addressed to one user.
func UserTopic(userID string) string {
	return "user:" + userID
}
