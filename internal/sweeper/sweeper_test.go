package sweeper

import (
	auction "bidflow/internal/auctionService"
	bidding "bidflow/internal/biddingService"
	"bidflow/internal/biddingerrors"
	"bidflow/internal/clock"
	"bidflow/internal/models"
	order "bidflow/internal/orderService"
	"bidflow/internal/realtime"
	"bidflow/internal/repository"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func endedEvent(auctionID string, winner bool) models.Event {
	ev := models.Event{Type: models.EventAuctionEnded, AuctionID: auctionID, OwnerID: "seller1", OccurredAt: t0}
	if winner {
		w, b := "buyer1", "bid-"+auctionID
		ev.WinnerID, ev.WinningBidID = &w, &b
	}
	return ev
}

func TestSweeper_RunTick_IsolatesFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	advancer := NewMockAuctionAdvancer(ctrl)
	materializer := NewMockOrderMaterializer(ctrl)
	pub := realtime.NewMockPublisher(ctrl)
	s := New(advancer, materializer, pub, clock.NewFixed(t0), time.Minute, 4, 0)

	advancer.EXPECT().DueAuctions(gomock.Any(), t0).Return([]models.Auction{
		{AuctionID: "a1"}, {AuctionID: "a2"}, {AuctionID: "a3"}, {AuctionID: "a4"},
	}, nil)
	advancer.EXPECT().Advance(gomock.Any(), "a1", t0).Return(models.Auction{}, nil, biddingerrors.ErrUnavailable)
	advancer.EXPECT().Advance(gomock.Any(), "a2", t0).Return(models.Auction{}, []models.Event{endedEvent("a2", true)}, nil)
	advancer.EXPECT().Advance(gomock.Any(), "a3", t0).Return(models.Auction{}, []models.Event{endedEvent("a3", false)}, nil)
	advancer.EXPECT().Advance(gomock.Any(), "a4", t0).Return(models.Auction{}, nil, biddingerrors.ErrAuctionTerminal)

	materializer.EXPECT().Materialize(gomock.Any(), "a2").Return(models.Order{OrderID: "o2"}, true, nil)

	pub.EXPECT().Publish(gomock.Any(), "auction:a2", gomock.Any()).Return(nil)
	pub.EXPECT().Publish(gomock.Any(), "auction:a3", gomock.Any()).Return(nil)
	pub.EXPECT().Publish(gomock.Any(), "user:seller1", gomock.Any()).Return(nil).Times(2)
	pub.EXPECT().Publish(gomock.Any(), "user:buyer1", gomock.Any()).Return(errors.New("publish failed"))

	events, err := s.RunTick(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "a2", events[0].AuctionID)
	require.Equal(t, "a3", events[1].AuctionID)
	require.Empty(t, s.PendingOrders())
}

func TestSweeper_RunTick_ListFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	advancer := NewMockAuctionAdvancer(ctrl)
	s := New(advancer, NewMockOrderMaterializer(ctrl), nil, clock.NewFixed(t0), time.Minute, 1, 0)

	advancer.EXPECT().DueAuctions(gomock.Any(), t0).Return(nil, biddingerrors.ErrUnavailable)

	_, err := s.RunTick(context.Background(), t0)
	require.ErrorIs(t, err, biddingerrors.ErrUnavailable)
}

func TestSweeper_RetriesFailedMaterialization(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	advancer := NewMockAuctionAdvancer(ctrl)
	materializer := NewMockOrderMaterializer(ctrl)
	s := New(advancer, materializer, nil, clock.NewFixed(t0), time.Minute, 2, 0)

	gomock.InOrder(
		advancer.EXPECT().DueAuctions(gomock.Any(), t0).Return([]models.Auction{{AuctionID: "a1"}}, nil),
		advancer.EXPECT().Advance(gomock.Any(), "a1", t0).Return(models.Auction{}, []models.Event{endedEvent("a1", true)}, nil),
		materializer.EXPECT().Materialize(gomock.Any(), "a1").Return(models.Order{}, false, biddingerrors.ErrUnavailable),
	)

	_, err := s.RunTick(context.Background(), t0)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, s.PendingOrders())

	next := t0.Add(time.Minute)
	gomock.InOrder(
		materializer.EXPECT().Materialize(gomock.Any(), "a1").Return(models.Order{OrderID: "o1"}, true, nil),
		advancer.EXPECT().DueAuctions(gomock.Any(), next).Return(nil, nil),
	)

	events, err := s.RunTick(context.Background(), next)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Empty(t, s.PendingOrders())
}

func TestSweeper_Run_StopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	advancer := NewMockAuctionAdvancer(ctrl)
	s := New(advancer, NewMockOrderMaterializer(ctrl), nil, clock.NewFixed(t0), 10*time.Millisecond, 1, 0)

	var mu sync.Mutex
	ticks := 0
	advancer.EXPECT().DueAuctions(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, time.Time) ([]models.Auction, error) {
		mu.Lock()
		ticks++
		mu.Unlock()
		return nil, nil
	}).MinTimes(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_Start_WaitsForTickInProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	advancer := NewMockAuctionAdvancer(ctrl)
	s := New(advancer, NewMockOrderMaterializer(ctrl), nil, clock.NewFixed(t0), time.Minute, 1, time.Second)

	inTick := make(chan struct{})
	finish := make(chan struct{})
	advancer.EXPECT().DueAuctions(gomock.Any(), t0).DoAndReturn(func(context.Context, time.Time) ([]models.Auction, error) {
		close(inTick)
		<-finish
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Start(ctx)
	<-inTick
	cancel()

	select {
	case <-done:
		t.Fatal("sweeper reported done while a tick was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

// stack wires the real services over one memory repo
type stack struct {
	repo     *repository.MemoryRepo
	auctions *auction.AuctionService
	bids     *bidding.BiddingService
	orders   *order.OrderService
}

func newStack(now time.Time) stack {
	repo := repository.NewMemoryRepo()
	clk := clock.NewFixed(now)
	return stack{
		repo:     repo,
		auctions: auction.NewAuctionService(repo, clk, nil),
		bids:     bidding.NewBiddingService(repo, clk, nil),
		orders:   order.NewOrderService(repo, clk, nil),
	}
}

var seller = models.User{UserID: "seller1", Role: models.RoleSeller}

func TestSweeper_RunTick_HungAuctionDoesNotBlockTick(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	advancer := NewMockAuctionAdvancer(ctrl)
	s := New(advancer, NewMockOrderMaterializer(ctrl), nil, clock.NewFixed(t0), time.Minute, 2, 50*time.Millisecond)

	advancer.EXPECT().DueAuctions(gomock.Any(), t0).Return([]models.Auction{{AuctionID: "stuck"}, {AuctionID: "ok"}}, nil)
	advancer.EXPECT().Advance(gomock.Any(), "stuck", t0).DoAndReturn(
		func(ctx context.Context, _ string, _ time.Time) (models.Auction, []models.Event, error) {
			<-ctx.Done()
			return models.Auction{}, nil, ctx.Err()
		})
	advancer.EXPECT().Advance(gomock.Any(), "ok", t0).Return(models.Auction{}, []models.Event{endedEvent("ok", false)}, nil)

	type result struct {
		events []models.Event
		err    error
	}
	done := make(chan result, 1)
	go func() {
		events, err := s.RunTick(context.Background(), t0)
		done <- result{events, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.events, 1)
		require.Equal(t, "ok", res.events[0].AuctionID)
	case <-time.After(2 * time.Second):
		t.Fatal("tick still blocked on one hung auction")
	}
}

func TestSweeper_RunTick_LockedAuctionIsRetried(t *testing.T) {
	ctx := context.Background()
	st := newStack(t0)
	s := New(st.auctions, st.orders, nil, clock.NewFixed(t0), time.Minute, 2, 50*time.Millisecond)

	var ids []string
	for i := 0; i < 2; i++ {
		product, err := st.auctions.CreateProduct(ctx, auction.CreateProductInput{OwnerID: "seller1", Name: "Lot", StartingPrice: decimal.NewFromInt(10)})
		require.NoError(t, err)
		a, err := st.auctions.ScheduleAuction(ctx, auction.ScheduleAuctionInput{ProductID: product.ProductID, OwnerID: "seller1", StartTime: t0, EndTime: t0.Add(time.Hour)})
		require.NoError(t, err)
		ids = append(ids, a.AuctionID)
	}

	// another writer holds the first auction's lock for the whole tick
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.repo.WithAuctionLock(ctx, ids[0], func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	events, err := s.RunTick(ctx, t0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ids[1], events[0].AuctionID)

	close(release)
	require.Eventually(t, func() bool {
		events, err := s.RunTick(ctx, t0)
		return err == nil && len(events) == 1 && events[0].AuctionID == ids[0]
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweeper_AuctionWithWinner(t *testing.T) {
	ctx := context.Background()
	st := newStack(t0)
	s := New(st.auctions, st.orders, nil, clock.NewFixed(t0), time.Minute, 4, 0)

	product, err := st.auctions.CreateProduct(ctx, auction.CreateProductInput{OwnerID: "seller1", Name: "Painting", StartingPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	a, err := st.auctions.ScheduleAuction(ctx, auction.ScheduleAuctionInput{
		ProductID: product.ProductID,
		OwnerID:   "seller1",
		StartTime: t0,
		EndTime:   t0.Add(60 * time.Second),
	})
	require.NoError(t, err)

	events, err := s.RunTick(ctx, t0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.EventAuctionStarted, events[0].Type)

	winning, err := st.bids.PlaceBid(ctx, bidding.PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer1", Amount: decimal.NewFromInt(150)})
	require.NoError(t, err)

	_, err = st.bids.PlaceBid(ctx, bidding.PlaceBidInput{AuctionID: a.AuctionID, BidderID: "buyer2", Amount: decimal.NewFromInt(120)})
	require.ErrorIs(t, err, biddingerrors.ErrInvalidInput)

	events, err = s.RunTick(ctx, t0.Add(61*time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, models.EventAuctionEnded, events[0].Type)
	require.Equal(t, "buyer1", *events[0].WinnerID)

	ended, err := st.auctions.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusEnded, ended.Status)
	require.Equal(t, winning.BidID, *ended.WinningBidID)

	p, err := st.auctions.GetProduct(ctx, product.ProductID)
	require.NoError(t, err)
	require.Equal(t, models.ProductStatusSold, p.Status)

	manifest, err := st.orders.Manifest(ctx, a.AuctionID, seller)
	require.NoError(t, err)
	require.Equal(t, 1, manifest.TotalOrders)
	require.True(t, manifest.Orders[0].FinalPrice.Equal(decimal.NewFromInt(150)))

	// nothing left to do on later ticks
	events, err = s.RunTick(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Empty(t, events)

	manifest, err = st.orders.Manifest(ctx, a.AuctionID, seller)
	require.NoError(t, err)
	require.Equal(t, 1, manifest.TotalOrders)
}

func TestSweeper_AuctionWithoutBids(t *testing.T) {
	ctx := context.Background()
	st := newStack(t0)
	s := New(st.auctions, st.orders, nil, clock.NewFixed(t0), time.Minute, 4, 0)

	product, err := st.auctions.CreateProduct(ctx, auction.CreateProductInput{OwnerID: "seller1", Name: "Vase", StartingPrice: decimal.NewFromInt(100)})
	require.NoError(t, err)
	a, err := st.auctions.ScheduleAuction(ctx, auction.ScheduleAuctionInput{
		ProductID: product.ProductID,
		OwnerID:   "seller1",
		StartTime: t0,
		EndTime:   t0.Add(time.Minute),
	})
	require.NoError(t, err)

	_, err = s.RunTick(ctx, t0)
	require.NoError(t, err)
	events, err := s.RunTick(ctx, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.False(t, events[0].HasWinner())

	ended, err := st.auctions.GetAuction(ctx, a.AuctionID)
	require.NoError(t, err)
	require.Nil(t, ended.WinnerID)
	require.True(t, ended.CurrentPrice.Equal(decimal.NewFromInt(100)))

	p, err := st.auctions.GetProduct(ctx, product.ProductID)
	require.NoError(t, err)
	require.Equal(t, models.ProductStatusEnded, p.Status)

	manifest, err := st.orders.Manifest(ctx, a.AuctionID, seller)
	require.NoError(t, err)
	require.Zero(t, manifest.TotalOrders)
}

func TestSweeper_ManyAuctions(t *testing.T) {
	ctx := context.Background()
	st := newStack(t0)
	s := New(st.auctions, st.orders, nil, clock.NewFixed(t0), time.Minute, 3, 0)

	for i := 0; i < 20; i++ {
		product, err := st.auctions.CreateProduct(ctx, auction.CreateProductInput{OwnerID: "seller1", Name: "Lot", StartingPrice: decimal.NewFromInt(10)})
		require.NoError(t, err)
		_, err = st.auctions.ScheduleAuction(ctx, auction.ScheduleAuctionInput{ProductID: product.ProductID, OwnerID: "seller1", StartTime: t0, EndTime: t0.Add(time.Hour)})
		require.NoError(t, err)
	}

	events, err := s.RunTick(ctx, t0)
	require.NoError(t, err)
	require.Len(t, events, 20)

	active, err := st.auctions.ListAuctions(ctx, models.AuctionStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 20)
}
