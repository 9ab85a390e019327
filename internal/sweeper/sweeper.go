package sweeper

import (
	"bidflow/internal/biddingerrors"
	"bidflow/internal/clock"
	"bidflow/internal/models"
	"bidflow/internal/realtime"
	"bidflow/utils"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -source=sweeper.go -destination=sweeper_mock.go -package=sweeper

// AuctionAdvancer applies due timed transitions
type AuctionAdvancer interface {
	DueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)
	Advance(ctx context.Context, auctionID string, now time.Time) (models.Auction, []models.Event, error)
}

// OrderMaterializer creates the order of an ended auction
type OrderMaterializer interface {
	Materialize(ctx context.Context, auctionID string) (models.Order, bool, error)
}

// Sweeper periodically advances every due auction and materializes the
// orders of the auctions that ended with a winner.
type Sweeper struct {
	auctions    AuctionAdvancer
	orders      OrderMaterializer
	publisher   realtime.Publisher
	clock       clock.Clock
	interval    time.Duration
	concurrency int
	// advanceTimeout bounds the work done for a single auction in one tick
	advanceTimeout time.Duration

	mu sync.Mutex
	// auctions whose order could not be created yet; retried every tick
	pendingOrders map[string]struct{}
}

// New builds a sweeper. advanceTimeout caps how long one auction may hold up
// a tick; zero or less falls back to the tick interval.
func New(auctions AuctionAdvancer, orders OrderMaterializer, publisher realtime.Publisher, clk clock.Clock, interval time.Duration, concurrency int, advanceTimeout time.Duration) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	if advanceTimeout <= 0 {
		advanceTimeout = interval
	}
	return &Sweeper{
		auctions:       auctions,
		orders:         orders,
		publisher:      publisher,
		clock:          clk,
		interval:       interval,
		concurrency:    concurrency,
		advanceTimeout: advanceTimeout,
		pendingOrders:  make(map[string]struct{}),
	}
}

// Start runs the sweeper in the background. The returned channel is closed
// once ctx is done and the tick in progress, if any, has returned.
func (s *Sweeper) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return done
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	utils.Info("sweeper started", map[string]any{
		"interval":        s.interval.String(),
		"concurrency":     s.concurrency,
		"advance_timeout": s.advanceTimeout.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			utils.Info("sweeper stopped", nil)
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	started := time.Now()
	events, err := s.RunTick(ctx, s.clock.Now())
	if err != nil {
		utils.Error("sweeper: tick failed", map[string]any{"error": err.Error()})
		return
	}
	if len(events) > 0 {
		utils.Info("sweeper: tick done", map[string]any{
			"events":      len(events),
			"duration_ms": time.Since(started).Milliseconds(),
		})
	}
}

// RunTick advances every auction that is due at now and returns the emitted
// events. A failure on one auction is logged and does not stop the others,
// and an auction that does not finish within the advance timeout is given up
// until the next tick. The returned error only reports that the due auctions
// could not be listed.
func (s *Sweeper) RunTick(ctx context.Context, now time.Time) ([]models.Event, error) {
	s.retryPendingOrders(ctx)

	due, err := s.auctions.DueAuctions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("sweeper: %w", err)
	}

	var (
		mu     sync.Mutex
		events []models.Event
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, a := range due {
		auctionID := a.AuctionID
		g.Go(func() error {
			evs := s.sweepOne(ctx, auctionID, now)
			mu.Lock()
			events = append(events, evs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// stable, so started stays ahead of ended within one auction
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].AuctionID < events[j].AuctionID
	})
	return events, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, auctionID string, now time.Time) []models.Event {
	advanceCtx, cancel := context.WithTimeout(ctx, s.advanceTimeout)
	defer cancel()

	_, events, err := s.auctions.Advance(advanceCtx, auctionID, now)
	if err != nil {
		switch {
		case errors.Is(err, biddingerrors.ErrInvalidState):
			// finished by someone else since it was listed
			utils.Debug("sweeper: auction no longer due", map[string]any{"auction_id": auctionID})
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			utils.Warn("sweeper: advance timed out, retrying next tick", map[string]any{
				"auction_id": auctionID,
				"timeout":    s.advanceTimeout.String(),
			})
		default:
			utils.Error("sweeper: advance failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
		return nil
	}

	for _, ev := range events {
		if ev.HasWinner() {
			s.materialize(ctx, ev.AuctionID)
		}
		s.publish(ctx, ev)
	}
	return events
}

func (s *Sweeper) materialize(ctx context.Context, auctionID string) {
	ctx, cancel := context.WithTimeout(ctx, s.advanceTimeout)
	defer cancel()

	order, created, err := s.orders.Materialize(ctx, auctionID)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if errors.Is(err, biddingerrors.ErrNotFound) || errors.Is(err, biddingerrors.ErrInvalidState) {
			utils.Error("sweeper: order materialization failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
			delete(s.pendingOrders, auctionID)
			return
		}
		utils.Error("sweeper: order materialization failed, will retry", map[string]any{"auction_id": auctionID, "error": err.Error()})
		s.pendingOrders[auctionID] = struct{}{}
		return
	}
	s.mu.Lock()
	delete(s.pendingOrders, auctionID)
	s.mu.Unlock()

	if created {
		utils.Info("sweeper: order materialized", map[string]any{"auction_id": auctionID, "order_id": order.OrderID})
	}
}

func (s *Sweeper) retryPendingOrders(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pendingOrders))
	for id := range s.pendingOrders {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.materialize(ctx, id)
	}
}

// publish fans an event out to the auction's watchers and, when it ends,
// to its seller and winner.
func (s *Sweeper) publish(ctx context.Context, ev models.Event) {
	realtime.Notify(ctx, s.publisher, models.AuctionTopic(ev.AuctionID), ev)
	if ev.Type != models.EventAuctionEnded {
		return
	}
	realtime.Notify(ctx, s.publisher, models.UserTopic(ev.OwnerID), ev)
	if ev.WinnerID != nil {
		realtime.Notify(ctx, s.publisher, models.UserTopic(*ev.WinnerID), ev)
	}
}

// PendingOrders returns the auctions whose order is waiting for a retry.
func (s *Sweeper) PendingOrders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.pendingOrders))
	for id := range s.pendingOrders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
