package bidding

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

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo      repository.AuctionDB
	clock     clock.Clock
	publisher realtime.Publisher
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, clk clock.Clock, publisher realtime.Publisher) *BiddingService {
	return &BiddingService{
		repo:      repo,
		clock:     clk,
		publisher: publisher,
	}
}

// PlaceBidInput identifies the bidder either by BidderID or, for guests, by name and phone.
type PlaceBidInput struct {
	AuctionID   string
	BidderID    string
	BidderName  string
	BidderPhone string
	Amount      decimal.Decimal
}

// PlaceBid validates and records a bid. On success the returned bid's amount
// is the auction's new current price. Every rejection of a well-formed bid
// is a *biddingerrors.BidError carrying the auction's status and price.
func (s *BiddingService) PlaceBid(ctx context.Context, in PlaceBidInput) (models.Bid, error) {
	in, err := s.validateBid(in)
	if err != nil {
		return models.Bid{}, err
	}

	var (
		bid     models.Bid
		auction models.Auction
	)
	err = s.repo.WithAuctionLock(ctx, in.AuctionID, func(ctx context.Context) error {
		a, err := s.repo.GetAuction(ctx, in.AuctionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		switch {
		case a.Status != models.AuctionStatusActive:
			return rejected(biddingerrors.ErrAuctionNotActive, a)
		case !now.Before(a.EndTime):
			return rejected(biddingerrors.ErrAuctionClosed, a)
		case in.BidderID == a.OwnerID:
			return rejected(biddingerrors.ErrOwnBid, a)
		case !in.Amount.GreaterThan(a.CurrentPrice):
			return rejected(biddingerrors.ErrBidTooLow, a)
		}

		candidate := models.Bid{
			BidID:       utils.GenerateID(),
			AuctionID:   a.AuctionID,
			UserID:      in.BidderID,
			BidderName:  in.BidderName,
			BidderPhone: in.BidderPhone,
			Amount:      in.Amount,
			CreatedAt:   now,
		}
		next := a
		next.CurrentPrice = in.Amount
		next.BidCount++
		next.UpdatedAt = now

		saved, err := s.repo.RecordBid(ctx, next, candidate)
		if errors.Is(err, biddingerrors.ErrStaleAuction) {
			// another writer got in first; report the price it left behind
			fresh, ferr := s.repo.GetAuction(ctx, in.AuctionID)
			if ferr != nil {
				return ferr
			}
			return rejected(biddingerrors.ErrBidTooLow, fresh)
		}
		if err != nil {
			return err
		}
		bid, auction = candidate, saved
		return nil
	})
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to place bid on auction %s by %s: %w", in.AuctionID, in.BidderID, err)
	}

	event := models.Event{
		Type:       models.EventBidPlaced,
		AuctionID:  auction.AuctionID,
		ProductID:  auction.ProductID,
		OwnerID:    auction.OwnerID,
		BidID:      bid.BidID,
		Price:      auction.CurrentPrice,
		OccurredAt: bid.CreatedAt,
	}
	realtime.Notify(ctx, s.publisher, models.AuctionTopic(auction.AuctionID), event)
	realtime.Notify(ctx, s.publisher, models.UserTopic(auction.OwnerID), event)

	return bid, nil
}

// validateBid checks the input before any state is read
func (s *BiddingService) validateBid(in PlaceBidInput) (PlaceBidInput, error) {
	if in.AuctionID == "" {
		return in, fmt.Errorf("service: %w - missing auctionID", biddingerrors.ErrInvalidBid)
	}

	in.BidderName = strings.TrimSpace(in.BidderName)
	in.BidderPhone = strings.TrimSpace(in.BidderPhone)
	if in.BidderID == "" {
		if in.BidderName == "" || in.BidderPhone == "" {
			return in, fmt.Errorf("service: %w - sign in or give a name and phone", biddingerrors.ErrMissingIdentity)
		}
		in.BidderID = utils.GuestID(in.BidderPhone)
	}

	if !in.Amount.IsPositive() {
		return in, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return in, fmt.Errorf("service: %w - at most two decimal places", biddingerrors.ErrInvalidBid)
	}
	return in, nil
}

func rejected(reason error, a models.Auction) error {
	return &biddingerrors.BidError{
		Reason:       reason,
		Status:       string(a.Status),
		CurrentPrice: a.CurrentPrice,
	}
}

// DeleteBid removes a bid from an active auction and recomputes the auction's
// price from the bids that remain. Callers must be authorized as admin.
func (s *BiddingService) DeleteBid(ctx context.Context, bidID string) (models.Auction, error) {
	if bidID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty bid ID", biddingerrors.ErrInvalidBid)
	}

	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to delete bid %s: %w", bidID, err)
	}

	var auction models.Auction
	err = s.repo.WithAuctionLock(ctx, bid.AuctionID, func(ctx context.Context) error {
		a, err := s.repo.GetAuction(ctx, bid.AuctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionStatusActive {
			return fmt.Errorf("%w - auction is %s", biddingerrors.ErrAuctionNotActive, a.Status)
		}

		bids, err := s.repo.GetBidsByAuction(ctx, a.AuctionID)
		if err != nil {
			return err
		}
		found := false
		price := a.StartingPrice
		for _, b := range bids {
			if b.BidID == bidID {
				found = true
				continue
			}
			if b.Amount.GreaterThan(price) {
				price = b.Amount
			}
		}
		if !found {
			return biddingerrors.ErrBidNotFound
		}

		next := a
		next.CurrentPrice = price
		if next.BidCount > 0 {
			next.BidCount--
		}
		next.UpdatedAt = s.clock.Now()

		saved, err := s.repo.RemoveBid(ctx, next, bidID)
		if err != nil {
			return err
		}
		auction = saved
		return nil
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to delete bid %s: %w", bidID, err)
	}

	utils.Info("bid deleted", map[string]any{
		"bid_id":        bidID,
		"auction_id":    auction.AuctionID,
		"current_price": auction.CurrentPrice.StringFixed(2),
	})
	realtime.Notify(ctx, s.publisher, models.AuctionTopic(auction.AuctionID), models.Event{
		Type:       models.EventBidDeleted,
		AuctionID:  auction.AuctionID,
		ProductID:  auction.ProductID,
		OwnerID:    auction.OwnerID,
		BidID:      bidID,
		Price:      auction.CurrentPrice,
		OccurredAt: auction.UpdatedAt,
	})
	return auction, nil
}

// GetBidsForAuction returns all bids for an auction, highest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	if _, err := s.repo.GetAuction(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return winningBid, nil
}

// GetAuctionsByBidder returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	return auctions, nil
}
