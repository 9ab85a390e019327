package auction

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
	"time"

	"github.com/shopspring/decimal"
)

// AuctionService owns products and the auction lifecycle
type AuctionService struct {
	repo      repository.AuctionDB
	clock     clock.Clock
	publisher realtime.Publisher
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(repo repository.AuctionDB, clk clock.Clock, publisher realtime.Publisher) *AuctionService {
	return &AuctionService{
		repo:      repo,
		clock:     clk,
		publisher: publisher,
	}
}

type CreateProductInput struct {
	OwnerID       string
	Name          string
	Description   string
	Category      string
	StartingPrice decimal.Decimal
}

// UpdateProductInput carries the caller and the fields to change; nil fields are left alone.
type UpdateProductInput struct {
	ProductID     string
	Caller        models.User
	Name          *string
	Description   *string
	Category      *string
	StartingPrice *decimal.Decimal
}

type ScheduleAuctionInput struct {
	ProductID string
	OwnerID   string
	StartTime time.Time
	EndTime   time.Time
}

// CreateProduct lists a new product in draft status
func (s *AuctionService) CreateProduct(ctx context.Context, in CreateProductInput) (models.Product, error) {
	if in.OwnerID == "" || strings.TrimSpace(in.Name) == "" {
		return models.Product{}, fmt.Errorf("service: %w - missing owner or name", biddingerrors.ErrInvalidProduct)
	}
	if !in.StartingPrice.IsPositive() {
		return models.Product{}, fmt.Errorf("service: %w - starting price must be positive", biddingerrors.ErrInvalidProduct)
	}

	now := s.clock.Now()
	product := models.Product{
		ProductID:     utils.GenerateID(),
		OwnerID:       in.OwnerID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Category:      in.Category,
		StartingPrice: in.StartingPrice.Round(2),
		Status:        models.ProductStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return models.Product{}, fmt.Errorf("service: failed to create product: %w", err)
	}
	return product, nil
}

// GetProduct returns a product by id
func (s *AuctionService) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, fmt.Errorf("service: failed to get product %s: %w", productID, err)
	}
	return product, nil
}

// ListProducts returns all products, or only ownerID's when it is set
func (s *AuctionService) ListProducts(ctx context.Context, ownerID string) ([]models.Product, error) {
	products, err := s.repo.ListProducts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, nil
}

// UpdateProduct edits a product owned by the caller, or any product for an
// admin. Products with a live auction cannot be edited, and neither can
// sold or archived ones.
func (s *AuctionService) UpdateProduct(ctx context.Context, in UpdateProductInput) (models.Product, error) {
	product, err := s.editableProduct(ctx, in.ProductID, in.Caller)
	if err != nil {
		return models.Product{}, fmt.Errorf("service: failed to update product %s: %w", in.ProductID, err)
	}
	if !product.Auctionable() {
		return models.Product{}, fmt.Errorf("service: %w - product is %s", biddingerrors.ErrProductNotListed, product.Status)
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return models.Product{}, fmt.Errorf("service: %w - name cannot be empty", biddingerrors.ErrInvalidProduct)
		}
		product.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		product.Description = *in.Description
	}
	if in.Category != nil {
		product.Category = *in.Category
	}
	if in.StartingPrice != nil {
		if !in.StartingPrice.IsPositive() {
			return models.Product{}, fmt.Errorf("service: %w - starting price must be positive", biddingerrors.ErrInvalidProduct)
		}
		product.StartingPrice = in.StartingPrice.Round(2)
	}
	product.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return models.Product{}, fmt.Errorf("service: failed to update product %s: %w", in.ProductID, err)
	}
	return product, nil
}

// ArchiveProduct withdraws a product so it can no longer be auctioned.
// Archiving an archived product is a no-op.
func (s *AuctionService) ArchiveProduct(ctx context.Context, productID string, caller models.User) (models.Product, error) {
	product, err := s.editableProduct(ctx, productID, caller)
	if err != nil {
		return models.Product{}, fmt.Errorf("service: failed to archive product %s: %w", productID, err)
	}
	if product.Status == models.ProductStatusArchived {
		return product, nil
	}

	product.Status = models.ProductStatusArchived
	product.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return models.Product{}, fmt.Errorf("service: failed to archive product %s: %w", productID, err)
	}

	utils.Info("product archived", map[string]any{"product_id": productID, "user_id": caller.UserID})
	return product, nil
}

// editableProduct loads a product the caller may change and that has no live auction
func (s *AuctionService) editableProduct(ctx context.Context, productID string, caller models.User) (models.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}
	if caller.Role != models.RoleAdmin && caller.UserID != product.OwnerID {
		return models.Product{}, fmt.Errorf("%w - product %s", biddingerrors.ErrNotOwner, productID)
	}
	if product.HasLiveAuction() {
		return models.Product{}, fmt.Errorf("%w - product is %s", biddingerrors.ErrProductLive, product.Status)
	}
	return product, nil
}

// ScheduleAuction creates a pending auction for one of the caller's products.
// The auction starts at the product's starting price.
func (s *AuctionService) ScheduleAuction(ctx context.Context, in ScheduleAuctionInput) (models.Auction, error) {
	if in.ProductID == "" || in.OwnerID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing product or owner", biddingerrors.ErrInvalidInput)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return models.Auction{}, fmt.Errorf("service: %w - start and end time are required", biddingerrors.ErrInvalidTimeRange)
	}
	if !in.EndTime.After(in.StartTime) {
		return models.Auction{}, fmt.Errorf("service: %w", biddingerrors.ErrInvalidTimeRange)
	}

	product, err := s.repo.GetProduct(ctx, in.ProductID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to schedule auction: %w", err)
	}
	if product.OwnerID != in.OwnerID {
		return models.Auction{}, fmt.Errorf("service: %w - product %s", biddingerrors.ErrNotOwner, in.ProductID)
	}
	if !product.Auctionable() {
		return models.Auction{}, fmt.Errorf("service: %w - product is %s", biddingerrors.ErrProductNotListed, product.Status)
	}

	now := s.clock.Now()
	auction := models.Auction{
		AuctionID:     utils.GenerateID(),
		ProductID:     product.ProductID,
		OwnerID:       product.OwnerID,
		Status:        models.AuctionStatusPending,
		StartTime:     in.StartTime.UTC(),
		EndTime:       in.EndTime.UTC(),
		StartingPrice: product.StartingPrice,
		CurrentPrice:  product.StartingPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to schedule auction for product %s: %w", product.ProductID, err)
	}

	utils.Info("auction scheduled", map[string]any{
		"auction_id": auction.AuctionID,
		"product_id": auction.ProductID,
		"start_time": auction.StartTime,
		"end_time":   auction.EndTime,
	})
	return auction, nil
}

// CancelAuction cancels a pending or active auction owned by ownerID
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID, ownerID string) (models.Auction, error) {
	var (
		cancelled models.Auction
		event     models.Event
	)
	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context) error {
		a, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.OwnerID != ownerID {
			return fmt.Errorf("%w - auction %s", biddingerrors.ErrNotOwner, auctionID)
		}

		next, ev, ok := Cancel(a, s.clock.Now())
		if !ok {
			return fmt.Errorf("%w - auction is %s", biddingerrors.ErrAuctionTerminal, a.Status)
		}
		saved, err := s.repo.SaveAuction(ctx, next, ProductStatusFor(next))
		if err != nil {
			return err
		}
		cancelled, event = saved, ev
		return nil
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}

	realtime.Notify(ctx, s.publisher, models.AuctionTopic(auctionID), event)
	return cancelled, nil
}

// GetAuction returns an auction by id
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// GetAuctionDetail returns an auction with its product and bids
func (s *AuctionService) GetAuctionDetail(ctx context.Context, auctionID string) (models.AuctionDetail, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.AuctionDetail{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	product, err := s.repo.GetProduct(ctx, a.ProductID)
	if err != nil {
		return models.AuctionDetail{}, fmt.Errorf("service: failed to get product of auction %s: %w", auctionID, err)
	}
	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return models.AuctionDetail{}, fmt.Errorf("service: failed to get bids of auction %s: %w", auctionID, err)
	}
	return models.AuctionDetail{Auction: a, Product: product, Bids: bids}, nil
}

// ListAuctions returns all auctions, or only those in status when it is set
func (s *AuctionService) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown auction status %q", biddingerrors.ErrInvalidInput, status)
	}
	auctions, err := s.repo.ListAuctions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// DueAuctions returns the auctions with a timed transition due at now
func (s *AuctionService) DueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	due, err := s.repo.ListDueAuctions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list due auctions: %w", err)
	}
	return due, nil
}

// Advance applies the transitions of one auction that are due at now.
// It returns the stored auction and the events of the transitions it applied,
// which is none when nothing was due.
func (s *AuctionService) Advance(ctx context.Context, auctionID string, now time.Time) (models.Auction, []models.Event, error) {
	var (
		result models.Auction
		events []models.Event
	)
	err := s.repo.WithAuctionLock(ctx, auctionID, func(ctx context.Context) error {
		a, err := s.repo.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status.IsTerminal() {
			return fmt.Errorf("%w - auction is %s", biddingerrors.ErrAuctionTerminal, a.Status)
		}

		var highest *models.Bid
		if !now.Before(a.EndTime) {
			bid, err := s.repo.GetWinningBid(ctx, auctionID)
			switch {
			case err == nil:
				highest = &bid
			case !errors.Is(err, biddingerrors.ErrNoBids):
				return err
			}
		}

		next, evs := AdvanceIfDue(a, highest, now)
		if len(evs) == 0 {
			result = a
			return nil
		}
		saved, err := s.repo.SaveAuction(ctx, next, ProductStatusFor(next))
		if err != nil {
			return err
		}
		result, events = saved, evs
		return nil
	})
	if err != nil {
		return models.Auction{}, nil, fmt.Errorf("service: failed to advance auction %s: %w", auctionID, err)
	}
	return result, events, nil
}
