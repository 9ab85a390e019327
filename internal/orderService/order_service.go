package order

import (
	"bidflow/internal/biddingerrors"
	"bidflow/internal/clock"
	"bidflow/internal/models"
	"bidflow/internal/realtime"
	"bidflow/internal/repository"
	"bidflow/utils"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// nextStatus lists the statuses an order may move to from each status
var nextStatus = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:   {models.OrderStatusDelivered},
}

var nextPayment = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending: {models.PaymentStatusPaid},
	models.PaymentStatusPaid:    {models.PaymentStatusRefunded},
}

// OrderService turns concluded auctions into orders and tracks their fulfilment
type OrderService struct {
	repo      repository.AuctionDB
	clock     clock.Clock
	publisher realtime.Publisher
}

// NewOrderService creates a new OrderService instance
func NewOrderService(repo repository.AuctionDB, clk clock.Clock, publisher realtime.Publisher) *OrderService {
	return &OrderService{
		repo:      repo,
		clock:     clk,
		publisher: publisher,
	}
}

// UpdateOrderInput carries the caller and the fields to change; nil fields are left alone.
type UpdateOrderInput struct {
	OrderID         string
	CallerID        string
	CallerRole      models.Role
	Status          *models.OrderStatus
	PaymentStatus   *models.PaymentStatus
	DeliveryAddress *string
	Notes           *string
}

// Materialize creates the order for an ended auction's winning bid. It is
// idempotent: when the order already exists it is returned with created set
// to false.
func (s *OrderService) Materialize(ctx context.Context, auctionID string) (models.Order, bool, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Order{}, false, fmt.Errorf("service: failed to materialize order for auction %s: %w", auctionID, err)
	}
	if a.Status != models.AuctionStatusEnded {
		return models.Order{}, false, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotEnded, auctionID, a.Status)
	}
	if a.WinnerID == nil || a.WinningBidID == nil {
		return models.Order{}, false, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNoWinner, auctionID)
	}

	existing, err := s.repo.GetOrderByBid(ctx, auctionID, *a.WinningBidID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, biddingerrors.ErrOrderNotFound) {
		return models.Order{}, false, fmt.Errorf("service: failed to look up order for auction %s: %w", auctionID, err)
	}

	bid, err := s.repo.GetBid(ctx, *a.WinningBidID)
	if err != nil {
		return models.Order{}, false, fmt.Errorf("service: failed to get winning bid of auction %s: %w", auctionID, err)
	}

	now := s.clock.Now()
	order := models.Order{
		OrderID:       utils.GenerateID(),
		AuctionID:     a.AuctionID,
		BidID:         bid.BidID,
		BuyerID:       bid.UserID,
		SellerID:      a.OwnerID,
		CustomerName:  bid.BidderName,
		CustomerPhone: bid.BidderPhone,
		FinalPrice:    bid.Amount,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		if !errors.Is(err, biddingerrors.ErrOrderExists) {
			return models.Order{}, false, fmt.Errorf("service: failed to create order for auction %s: %w", auctionID, err)
		}
		// lost the race to a concurrent materialization
		existing, err := s.repo.GetOrderByBid(ctx, auctionID, bid.BidID)
		if err != nil {
			return models.Order{}, false, fmt.Errorf("service: failed to look up order for auction %s: %w", auctionID, err)
		}
		return existing, false, nil
	}

	utils.Info("order created", map[string]any{
		"order_id":    order.OrderID,
		"auction_id":  order.AuctionID,
		"buyer_id":    order.BuyerID,
		"final_price": order.FinalPrice.StringFixed(2),
	})

	event := models.Event{
		Type:         models.EventOrderCreated,
		AuctionID:    a.AuctionID,
		ProductID:    a.ProductID,
		OwnerID:      a.OwnerID,
		WinnerID:     a.WinnerID,
		WinningBidID: a.WinningBidID,
		BidID:        bid.BidID,
		OrderID:      order.OrderID,
		Price:        order.FinalPrice,
		OccurredAt:   now,
	}
	realtime.Notify(ctx, s.publisher, models.AuctionTopic(a.AuctionID), event)
	realtime.Notify(ctx, s.publisher, models.UserTopic(order.BuyerID), event)
	realtime.Notify(ctx, s.publisher, models.UserTopic(order.SellerID), event)

	return order, true, nil
}

// GetOrder returns an order by id
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("service: failed to get order %s: %w", orderID, err)
	}
	return o, nil
}

// UpdateOrder changes an order's fulfilment fields. Only the buyer, the
// seller or an admin may update an order, and status and payment status
// only move forward. An update racing another one on the same order fails
// with ErrStaleOrder instead of overwriting it.
func (s *OrderService) UpdateOrder(ctx context.Context, in UpdateOrderInput) (models.Order, error) {
	o, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return models.Order{}, fmt.Errorf("service: failed to update order %s: %w", in.OrderID, err)
	}
	fromStatus, fromPayment := o.Status, o.PaymentStatus
	if in.CallerRole != models.RoleAdmin && in.CallerID != o.BuyerID && in.CallerID != o.SellerID {
		return models.Order{}, fmt.Errorf("service: %w - order %s", biddingerrors.ErrNotOwner, in.OrderID)
	}

	if in.Status != nil && *in.Status != o.Status {
		if !knownStatus(*in.Status) {
			return models.Order{}, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrInvalidOrder, *in.Status)
		}
		if !allowed(nextStatus[o.Status], *in.Status) {
			return models.Order{}, fmt.Errorf("service: %w - %s to %s", biddingerrors.ErrOrderTransition, o.Status, *in.Status)
		}
		o.Status = *in.Status
	}

	if in.PaymentStatus != nil && *in.PaymentStatus != o.PaymentStatus {
		if !knownPayment(*in.PaymentStatus) {
			return models.Order{}, fmt.Errorf("service: %w - unknown payment status %q", biddingerrors.ErrInvalidOrder, *in.PaymentStatus)
		}
		if !allowed(nextPayment[o.PaymentStatus], *in.PaymentStatus) {
			return models.Order{}, fmt.Errorf("service: %w - payment %s to %s", biddingerrors.ErrOrderTransition, o.PaymentStatus, *in.PaymentStatus)
		}
		o.PaymentStatus = *in.PaymentStatus
	}

	if in.DeliveryAddress != nil {
		o.DeliveryAddress = strings.TrimSpace(*in.DeliveryAddress)
	}
	if in.Notes != nil {
		o.Notes = *in.Notes
	}
	o.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateOrder(ctx, o, fromStatus, fromPayment); err != nil {
		return models.Order{}, fmt.Errorf("service: failed to update order %s: %w", in.OrderID, err)
	}
	return o, nil
}

// ListOrdersByUser returns the orders userID bought or sold. Callers may
// only list their own orders unless they are admins.
func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string, caller models.User) ([]models.Order, error) {
	if caller.Role != models.RoleAdmin && caller.UserID != userID {
		return nil, fmt.Errorf("service: %w - orders of user %s", biddingerrors.ErrNotOwner, userID)
	}
	orders, err := s.repo.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list orders of user %s: %w", userID, err)
	}
	return orders, nil
}

// Manifest summarizes the orders of one auction for its seller or an admin.
// Orders carry the buyers' contact details, so nobody else may read it.
func (s *OrderService) Manifest(ctx context.Context, auctionID string, caller models.User) (models.OrderManifest, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.OrderManifest{}, fmt.Errorf("service: failed to build manifest for auction %s: %w", auctionID, err)
	}
	if caller.Role != models.RoleAdmin && caller.UserID != a.OwnerID {
		return models.OrderManifest{}, fmt.Errorf("service: %w - manifest of auction %s", biddingerrors.ErrNotOwner, auctionID)
	}
	orders, err := s.repo.GetOrdersByAuction(ctx, auctionID)
	if err != nil {
		return models.OrderManifest{}, fmt.Errorf("service: failed to build manifest for auction %s: %w", auctionID, err)
	}

	total := decimal.Zero
	for _, o := range orders {
		if o.Status != models.OrderStatusCancelled {
			total = total.Add(o.FinalPrice)
		}
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return models.OrderManifest{
		AuctionID:     a.AuctionID,
		AuctionStatus: a.Status,
		TotalOrders:   len(orders),
		TotalValue:    total,
		Orders:        orders,
	}, nil
}

func knownStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusShipped,
		models.OrderStatusDelivered, models.OrderStatusCancelled:
		return true
	}
	return false
}

func knownPayment(s models.PaymentStatus) bool {
	switch s {
	case models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusRefunded:
		return true
	}
	return false
}

func allowed[T comparable](options []T, target T) bool {
	for _, o := range options {
		if o == target {
			return true
		}
	}
	return false
}
