package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the role carried by a caller's credentials
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// User represents a participant in the auction
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusScheduled ProductStatus = "scheduled"
	ProductStatusActive    ProductStatus = "active"
	ProductStatusSold      ProductStatus = "sold"
	ProductStatusEnded     ProductStatus = "ended"
	ProductStatusArchived  ProductStatus = "archived"
)

// Product represents an item listed by a seller
type Product struct {
	ProductID     string          `json:"product_id" db:"id"`
	OwnerID       string          `json:"owner_id" db:"owner_id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	Category      string          `json:"category" db:"category"`
	StartingPrice decimal.Decimal `json:"starting_price" db:"starting_price"`
	Status        ProductStatus   `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Auctionable reports whether a new auction may be scheduled for the product.
func (p Product) Auctionable() bool {
	return p.Status != ProductStatusSold && p.Status != ProductStatusArchived
}

// HasLiveAuction reports whether the product is scheduled or on auction.
func (p Product) HasLiveAuction() bool {
	return p.Status == ProductStatusScheduled || p.Status == ProductStatusActive
}

type AuctionStatus string

const (
	AuctionStatusPending   AuctionStatus = "pending"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

// Valid reports whether s is a known auction status.
func (s AuctionStatus) Valid() bool {
	switch s {
	case AuctionStatusPending, AuctionStatusActive, AuctionStatusEnded, AuctionStatusCancelled:
		return true
	}
	return false
}

// Auction represents the timed sale of one product
type Auction struct {
	AuctionID     string          `json:"auction_id" db:"id"`
	ProductID     string          `json:"product_id" db:"product_id"`
	OwnerID       string          `json:"owner_id" db:"owner_id"`
	Status        AuctionStatus   `json:"status" db:"status"`
	StartTime     time.Time       `json:"start_time" db:"start_time"`
	EndTime       time.Time       `json:"end_time" db:"end_time"`
	StartingPrice decimal.Decimal `json:"starting_price" db:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price" db:"current_price"`
	WinnerID      *string         `json:"winner_id" db:"winner_id"`
	WinningBidID  *string         `json:"winning_bid_id" db:"winning_bid_id"`
	BidCount      int             `json:"bid_count" db:"bid_count"`
	// Version is bumped on every write and checked by conditional updates.
	Version   int64     `json:"version" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Bid represents a user's bid on an auction
type Bid struct {
	BidID       string          `json:"bid_id" db:"id"`
	AuctionID   string          `json:"auction_id" db:"auction_id"`
	UserID      string          `json:"user_id" db:"bidder_id"`
	BidderName  string          `json:"bidder_name,omitempty" db:"bidder_name"`
	BidderPhone string          `json:"bidder_phone,omitempty" db:"bidder_phone"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	IsWinning   bool            `json:"is_winning" db:"is_winning"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is the purchase derived from a concluded auction's winning bid
type Order struct {
	OrderID         string          `json:"order_id" db:"id"`
	AuctionID       string          `json:"auction_id" db:"auction_id"`
	BidID           string          `json:"bid_id" db:"bid_id"`
	BuyerID         string          `json:"buyer_id" db:"buyer_id"`
	SellerID        string          `json:"seller_id" db:"seller_id"`
	CustomerName    string          `json:"customer_name" db:"customer_name"`
	CustomerPhone   string          `json:"customer_phone" db:"customer_phone"`
	DeliveryAddress string          `json:"delivery_address" db:"delivery_address"`
	Notes           string          `json:"notes" db:"notes"`
	FinalPrice      decimal.Decimal `json:"final_price" db:"final_price"`
	Status          OrderStatus     `json:"status" db:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// AuctionDetail is an auction together with its product and bids
type AuctionDetail struct {
	Auction Auction `json:"auction"`
	Product Product `json:"product"`
	// Bids are ordered by amount, highest first.
	Bids []Bid `json:"bids"`
}

// OrderManifest summarises the orders of one auction
type OrderManifest struct {
	AuctionID     string          `json:"auction_id"`
	AuctionStatus AuctionStatus   `json:"auction_status"`
	TotalOrders   int             `json:"total_orders"`
	TotalValue    decimal.Decimal `json:"total_value"`
	Orders        []Order         `json:"orders"`
}
