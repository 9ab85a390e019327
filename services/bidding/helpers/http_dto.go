package helpers

import (
	"time"

	model "bidflow/internal/models"
	"bidflow/utils"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	// Guests without a token identify themselves by name and phone
	BidderName  string `json:"bidder_name"`
	BidderPhone string `json:"bidder_phone"`
}

type BidResponse struct {
	BidID      string          `json:"bid_id"`
	AuctionID  string          `json:"auction_id"`
	UserID     string          `json:"user_id"`
	Guest      bool            `json:"guest,omitempty"`
	BidderName string          `json:"bidder_name,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	IsWinning  bool            `json:"is_winning"`
	CreatedAt  string          `json:"created_at"`
}

// NewBidResponse hides the bidder's phone number
func NewBidResponse(b model.Bid) BidResponse {
	resp := BidResponse{
		BidID:      b.BidID,
		AuctionID:  b.AuctionID,
		UserID:     b.UserID,
		BidderName: b.BidderName,
		Amount:     b.Amount,
		IsWinning:  b.IsWinning,
		CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
	}
	resp.Guest = utils.IsGuestID(b.UserID)
	return resp
}

func NewBidResponses(bids []model.Bid) []BidResponse {
	resp := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, NewBidResponse(b))
	}
	return resp
}

// BidRejection is attached to every rejected bid so the client can retry
type BidRejection struct {
	AuctionStatus string          `json:"auction_status"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
}

type CreateProductRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	StartingPrice decimal.Decimal `json:"starting_price"`
}

// UpdateProductRequest carries only the fields being changed
type UpdateProductRequest struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Category      *string          `json:"category"`
	StartingPrice *decimal.Decimal `json:"starting_price"`
}

type ScheduleAuctionRequest struct {
	ProductID string    `json:"product_id" binding:"required"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type AuctionDetailResponse struct {
	Auction model.Auction `json:"auction"`
	Product model.Product `json:"product"`
	Bids    []BidResponse `json:"bids"`
}

type UpdateOrderRequest struct {
	Status          *model.OrderStatus   `json:"status"`
	PaymentStatus   *model.PaymentStatus `json:"payment_status"`
	DeliveryAddress *string              `json:"delivery_address"`
	Notes           *string              `json:"notes"`
}
