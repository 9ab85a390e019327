package bidding

import (
	"bidflow/internal/biddingerrors"
	"bidflow/internal/clock"
	model "bidflow/internal/models"
	"bidflow/internal/realtime"
	"bidflow/internal/repository"
	"bidflow/utils"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)

func activeAuction(price int64) model.Auction {
	return model.Auction{
		AuctionID:     "auction1",
		ProductID:     "product1",
		OwnerID:       "seller1",
		Status:        model.AuctionStatusActive,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		StartingPrice: decimal.NewFromInt(100),
		CurrentPrice:  decimal.NewFromInt(price),
		BidCount:      1,
		Version:       3,
	}
}

func runLocked(_ context.Context, _ string, fn func(context.Context) error) error {
	return fn(context.Background())
}

// Tests PlaceBid
func TestBiddingService_PlaceBid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	pub := realtime.NewMockPublisher(ctrl)
	service := NewBiddingService(mockRepo, clock.NewFixed(now), pub)

	// Table-driven test cases
	tests := []struct {
		name          string
		input         PlaceBidInput
		mockSetup     func()
		expectError   bool
		expectedError error
		expectedPrice string
	}{
		{
			name:  "valid_bid",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(150)},
			mockSetup: func() {
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(120), nil)
				mockRepo.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, a model.Auction, b model.Bid) (model.Auction, error) {
						require.True(t, a.CurrentPrice.Equal(decimal.NewFromInt(150)))
						require.Equal(t, 2, a.BidCount)
						require.Equal(t, int64(3), a.Version)
						require.Equal(t, "buyer1", b.UserID)
						a.Version++
						return a, nil
					})
				pub.EXPECT().Publish(gomock.Any(), "auction:auction1", gomock.Any()).Return(nil)
				pub.EXPECT().Publish(gomock.Any(), "user:seller1", gomock.Any()).Return(errors.New("publish failed"))
			},
		},
		{
			name:          "empty_auctionID",
			input:         PlaceBidInput{BidderID: "buyer1", Amount: decimal.NewFromInt(150)},
			mockSetup:     func() {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "no_identity",
			input:         PlaceBidInput{AuctionID: "auction1", Amount: decimal.NewFromInt(150)},
			mockSetup:     func() {},
			expectError:   true,
			expectedError: biddingerrors.ErrMissingIdentity,
		},
		{
			name:          "guest_without_phone",
			input:         PlaceBidInput{AuctionID: "auction1", BidderName: "Ann", Amount: decimal.NewFromInt(150)},
			mockSetup:     func() {},
			expectError:   true,
			expectedError: biddingerrors.ErrMissingIdentity,
		},
		{
			name:          "zero_amount",
			input:         PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1"},
			mockSetup:     func() {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "negative_amount",
			input:         PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(-50)},
			mockSetup:     func() {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:          "too_many_decimals",
			input:         PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.RequireFromString("150.005")},
			mockSetup:     func() {},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidBid,
		},
		{
			name:  "auction_not_found",
			input: PlaceBidInput{AuctionID: "missing", BidderID: "buyer1", Amount: decimal.NewFromInt(150)},
			mockSetup: func() {
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "missing", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "missing").Return(model.Auction{}, biddingerrors.ErrAuctionNotFound)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrNotFound,
		},
		{
			name:  "auction_pending",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(150)},
			mockSetup: func() {
				a := activeAuction(100)
				a.Status = model.AuctionStatusPending
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrInvalidState,
			expectedPrice: "100",
		},
		{
			name:  "end_time_passed_before_sweep",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(150)},
			mockSetup: func() {
				a := activeAuction(120)
				a.EndTime = now
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(a, nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrAuctionClosed,
			expectedPrice: "120",
		},
		{
			name:  "own_auction",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "seller1", Amount: decimal.NewFromInt(150)},
			mockSetup: func() {
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(120), nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrForbidden,
			expectedPrice: "120",
		},
		{
			name:  "equal_to_current_price",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(120)},
			mockSetup: func() {
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(120), nil)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrBidTooLow,
			expectedPrice: "120",
		},
		{
			name:  "price_moved_concurrently",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(180)},
			mockSetup: func() {
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				gomock.InOrder(
					mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(150), nil),
					mockRepo.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.Auction{}, biddingerrors.ErrStaleAuction),
					mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(200), nil),
				)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrBidTooLow,
			expectedPrice: "200",
		},
		{
			name:  "repo_fails",
			input: PlaceBidInput{AuctionID: "auction1", BidderID: "buyer1", Amount: decimal.NewFromInt(150)},
			mockSetup: func() {
				mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
				mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(120), nil)
				mockRepo.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.Auction{}, biddingerrors.ErrUnavailable)
			},
			expectError:   true,
			expectedError: biddingerrors.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()

			bid, err := service.PlaceBid(context.Background(), tt.input)

			if tt.expectError {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.expectedError)
				if tt.expectedPrice != "" {
					var bidErr *biddingerrors.BidError
					require.ErrorAs(t, err, &bidErr)
					require.Equal(t, tt.expectedPrice, bidErr.CurrentPrice.String())
				}
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.input.AuctionID, bid.AuctionID)
				require.True(t, tt.input.Amount.Equal(bid.Amount))
				require.Equal(t, now, bid.CreatedAt)
			}
		})
	}
}

func TestBiddingService_PlaceBid_Guest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	service := NewBiddingService(mockRepo, clock.NewFixed(now), nil)

	mockRepo.EXPECT().WithAuctionLock(gomock.Any(), "auction1", gomock.Any()).DoAndReturn(runLocked)
	mockRepo.EXPECT().GetAuction(gomock.Any(), "auction1").Return(activeAuction(120), nil)
	mockRepo.EXPECT().RecordBid(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, a model.Auction, _ model.Bid) (model.Auction, error) {
			return a, nil
		})

	bid, err := service.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID:   "auction1",
		BidderName:  " Ann ",
		BidderPhone: "+15550100",
		Amount:      decimal.RequireFromString("130.50"),
	})
	require.NoError(t, err)
	require.Equal(t, utils.GuestID("+15550100"), bid.UserID)
	require.NotContains(t, bid.UserID, "+15550100")
	require.Equal(t, "Ann", bid.BidderName)
}

// newLiveAuction seeds an active auction directly into a memory repo
func newLiveAuction(t *testing.T, repo *repository.MemoryRepo) model.Auction {
	t.Helper()
	ctx := context.Background()

	repo.AddProduct(model.Product{ProductID: "product1", OwnerID: "seller1", Name: "Clock", StartingPrice: decimal.NewFromInt(100), Status: model.ProductStatusDraft})
	a := activeAuction(100)
	a.BidCount = 0
	a.Version = 0
	a.Status = model.AuctionStatusPending
	require.NoError(t, repo.CreateAuction(ctx, a))

	a.Status = model.AuctionStatusActive
	saved, err := repo.SaveAuction(ctx, a, model.ProductStatusActive)
	require.NoError(t, err)
	return saved
}

func TestBiddingService_StrictlyIncreasing(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	amounts := []int64{150, 120, 150, 151, 300, 299}
	var accepted []int64
	for i, amount := range amounts {
		_, err := service.PlaceBid(ctx, PlaceBidInput{
			AuctionID: a.AuctionID,
			BidderID:  "buyer" + string(rune('a'+i)),
			Amount:    decimal.NewFromInt(amount),
		})
		if err == nil {
			accepted = append(accepted, amount)
			continue
		}
		require.ErrorIs(t, err, biddingerrors.ErrInvalidInput)
	}
	require.Equal(t, []int64{150, 151, 300}, accepted)

	stored, err := repo.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.True(t, stored.CurrentPrice.Equal(decimal.NewFromInt(300)))
	require.Equal(t, 3, stored.BidCount)

	winning, err := service.GetWinningBid(ctx, a.AuctionID)
	require.NoError(t, err)
	require.True(t, winning.Amount.Equal(decimal.NewFromInt(300)))
}

func TestBiddingService_ConcurrentBids(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	_, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer0", Amount: decimal.NewFromInt(150)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(map[int64]error)
	var mu sync.Mutex
	for i, amount := range []int64{200, 180} {
		wg.Add(1)
		go func(bidder string, amount int64) {
			defer wg.Done()
			_, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: bidder, Amount: decimal.NewFromInt(amount)})
			mu.Lock()
			errs[amount] = err
			mu.Unlock()
		}("buyer"+string(rune('1'+i)), amount)
	}
	wg.Wait()

	require.NoError(t, errs[200])
	var bidErr *biddingerrors.BidError
	if errs[180] != nil {
		require.ErrorAs(t, errs[180], &bidErr)
		require.ErrorIs(t, errs[180], biddingerrors.ErrBidTooLow)
		require.True(t, bidErr.CurrentPrice.Equal(decimal.NewFromInt(200)))
	} else {
		// 180 landed first against 150; 200 still outbid it
		bids, err := service.GetBidsForAuction(ctx, a.AuctionID)
		require.NoError(t, err)
		require.Len(t, bids, 3)
	}

	stored, err := repo.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.True(t, stored.CurrentPrice.Equal(decimal.NewFromInt(200)))
}

func TestBiddingService_ManyConcurrentBidders(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = service.PlaceBid(ctx, PlaceBidInput{
				AuctionID: a.AuctionID,
				BidderID:  "buyer" + decimal.NewFromInt(int64(i)).String(),
				Amount:    decimal.NewFromInt(int64(100 + i)),
			})
		}(i)
	}
	wg.Wait()

	bids, err := repo.GetBidsByAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.NotEmpty(t, bids)

	// sorted by amount desc, so acceptance order must be the reverse
	for i := 1; i < len(bids); i++ {
		require.True(t, bids[i-1].Amount.GreaterThan(bids[i].Amount))
	}

	stored, err := repo.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, len(bids), stored.BidCount)
	require.True(t, stored.CurrentPrice.Equal(bids[0].Amount))
}

func TestBiddingService_RejectedBidDoesNotMutate(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	_, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "seller1", Amount: decimal.NewFromInt(500)})
	require.ErrorIs(t, err, biddingerrors.ErrOwnBid)

	stored, err := repo.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, a, stored)
}

func TestBiddingService_DeleteBid(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	first, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer1", Amount: decimal.NewFromInt(120)})
	require.NoError(t, err)
	top, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer2", Amount: decimal.NewFromInt(150)})
	require.NoError(t, err)

	updated, err := service.DeleteBid(ctx, top.BidID)
	require.NoError(t, err)
	require.True(t, updated.CurrentPrice.Equal(decimal.NewFromInt(120)))
	require.Equal(t, 1, updated.BidCount)

	updated, err = service.DeleteBid(ctx, first.BidID)
	require.NoError(t, err)
	require.True(t, updated.CurrentPrice.Equal(decimal.NewFromInt(100)))
	require.Equal(t, 0, updated.BidCount)

	_, err = service.DeleteBid(ctx, first.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrNotFound)

	_, err = service.GetWinningBid(ctx, a.AuctionID)
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)
}

func TestBiddingService_DeleteBid_EndedAuction(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	bid, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer1", Amount: decimal.NewFromInt(150)})
	require.NoError(t, err)

	stored, err := repo.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	stored.Status = model.AuctionStatusEnded
	_, err = repo.SaveAuction(ctx, stored, "")
	require.NoError(t, err)

	_, err = service.DeleteBid(ctx, bid.BidID)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidState)

	_, err = service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer2", Amount: decimal.NewFromInt(500)})
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotActive)
}

// Tests GetAuctionsByBidder and GetBidsForAuction input checks
func TestBiddingService_Queries(t *testing.T) {
	repo := repository.NewMemoryRepo()
	service := NewBiddingService(repo, clock.NewFixed(now), nil)
	a := newLiveAuction(t, repo)
	ctx := context.Background()

	_, err := service.PlaceBid(ctx, PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer1", Amount: decimal.NewFromInt(150)})
	require.NoError(t, err)

	auctions, err := service.GetAuctionsByBidder(ctx, "buyer1")
	require.NoError(t, err)
	require.Len(t, auctions, 1)
	require.Equal(t, a.AuctionID, auctions[0].AuctionID)

	_, err = service.GetAuctionsByBidder(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)

	_, err = service.GetBidsForAuction(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	_, err = service.GetWinningBid(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)
}
