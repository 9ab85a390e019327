package repository

import (
	"bidflow/internal/biddingerrors"
	"bidflow/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:generate mockgen -source=repository.go -destination=repository_mock.go -package=repository

// AuctionDB defines the storage interface for the auction system.
//
// Writes that touch an auction row are conditional: the auction passed in
// carries the version that was read, and the write fails with
// biddingerrors.ErrStaleAuction if the stored version moved on. On success
// the returned auction carries the new version.
type AuctionDB interface {
	// WithAuctionLock runs fn while holding the write lock of one auction.
	WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context) error) error

	CreateProduct(ctx context.Context, product models.Product) error
	GetProduct(ctx context.Context, productID string) (models.Product, error)
	ListProducts(ctx context.Context, ownerID string) ([]models.Product, error)
	// UpdateProduct writes the product's fields and status. It fails with
	// biddingerrors.ErrProductLive while the product has a live auction.
	UpdateProduct(ctx context.Context, product models.Product) error

	// CreateAuction stores a new auction and moves its product to scheduled.
	// It fails with biddingerrors.ErrProductNotListed for sold or archived products.
	CreateAuction(ctx context.Context, auction models.Auction) error
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error)
	// ListDueAuctions returns pending auctions with start <= now and active auctions with end <= now.
	ListDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)
	// SaveAuction writes the auction, sets the product status when productStatus is not
	// empty and flags auction.WinningBidID as the winning bid when set.
	SaveAuction(ctx context.Context, auction models.Auction, productStatus models.ProductStatus) (models.Auction, error)

	// RecordBid appends the bid and writes the auction in one step.
	RecordBid(ctx context.Context, auction models.Auction, bid models.Bid) (models.Auction, error)
	// RemoveBid deletes the bid and writes the auction in one step.
	RemoveBid(ctx context.Context, auction models.Auction, bidID string) (models.Auction, error)
	GetBid(ctx context.Context, bidID string) (models.Bid, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error)
	GetAuctionsByBidder(ctx context.Context, userID string) ([]models.Auction, error)

	CreateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	GetOrderByBid(ctx context.Context, auctionID, bidID string) (models.Order, error)
	GetOrdersByAuction(ctx context.Context, auctionID string) ([]models.Order, error)
	// GetOrdersByUser returns the orders userID bought or sold, newest first.
	GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	// UpdateOrder writes the order only if its stored status and payment status
	// are still fromStatus and fromPayment, and fails with
	// biddingerrors.ErrStaleOrder otherwise.
	UpdateOrder(ctx context.Context, order models.Order, fromStatus models.OrderStatus, fromPayment models.PaymentStatus) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu           sync.RWMutex
	products     map[string]models.Product // key: productID
	auctions     map[string]models.Auction // key: auctionID
	bids         map[string]models.Bid     // key: bidID
	auctionBids  map[string][]string       // key: auctionID -> value: bidIDs in acceptance order
	userAuctions map[string][]string       // key: userID -> value: auctionIDs the user has bid on
	orders       map[string]models.Order   // key: orderID
	orderByBid   map[string]string         // key: bidID -> value: orderID

	locksMu sync.Mutex
	locks   map[string]*auctionLock // key: auctionID, only while held or awaited
}

// auctionLock is a mutex that can be awaited with a context.
type auctionLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		products:     make(map[string]models.Product),
		auctions:     make(map[string]models.Auction),
		bids:         make(map[string]models.Bid),
		auctionBids:  make(map[string][]string),
		userAuctions: make(map[string][]string),
		orders:       make(map[string]models.Order),
		orderByBid:   make(map[string]string),
		locks:        make(map[string]*auctionLock),
	}
}

// WithAuctionLock serializes writers of one auction. Different auctions never
// block each other, and a caller waiting for the lock gives up when ctx is done.
func (r *MemoryRepo) WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := r.lockRef(auctionID)
	defer r.lockUnref(auctionID, l)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("lock auction %s: %w", auctionID, ctx.Err())
	}
	defer func() { <-l.ch }()
	return fn(ctx)
}

func (r *MemoryRepo) lockRef(auctionID string) *auctionLock {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[auctionID]
	if !ok {
		l = &auctionLock{ch: make(chan struct{}, 1)}
		r.locks[auctionID] = l
	}
	l.refs++
	return l
}

// lockUnref drops the entry once nobody holds or awaits it, so the map only
// ever holds auctions that are being written.
func (r *MemoryRepo) lockUnref(auctionID string, l *auctionLock) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(r.locks, auctionID)
	}
}

// lockCount reports how many auctions currently have a lock entry.
func (r *MemoryRepo) lockCount() int {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	return len(r.locks)
}

// CreateProduct stores a new product
func (r *MemoryRepo) CreateProduct(_ context.Context, product models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ProductID == "" {
		return fmt.Errorf("create product: %w", biddingerrors.ErrInvalidProduct)
	}
	if _, ok := r.products[product.ProductID]; ok {
		return fmt.Errorf("create product %s: %w", product.ProductID, biddingerrors.ErrConflict)
	}
	r.products[product.ProductID] = product
	return nil
}

// GetProduct returns a product by id
func (r *MemoryRepo) GetProduct(_ context.Context, productID string) (models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	if !ok {
		return models.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return p, nil
}

// ListProducts returns all products, or only those of ownerID when it is not empty
func (r *MemoryRepo) ListProducts(_ context.Context, ownerID string) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if ownerID == "" || p.OwnerID == ownerID {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

// UpdateProduct replaces a product unless it is scheduled or on auction
func (r *MemoryRepo) UpdateProduct(_ context.Context, product models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[product.ProductID]
	if !ok {
		return fmt.Errorf("update product %s: %w", product.ProductID, biddingerrors.ErrProductNotFound)
	}
	if stored.HasLiveAuction() {
		return fmt.Errorf("update product %s: %w", product.ProductID, biddingerrors.ErrProductLive)
	}
	r.products[product.ProductID] = product
	return nil
}

// CreateAuction stores a pending auction unless its product already has a live one
func (r *MemoryRepo) CreateAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[auction.ProductID]
	if !ok {
		return fmt.Errorf("create auction for product %s: %w", auction.ProductID, biddingerrors.ErrProductNotFound)
	}
	if !product.Auctionable() {
		return fmt.Errorf("create auction for product %s: %w", auction.ProductID, biddingerrors.ErrProductNotListed)
	}
	for _, a := range r.auctions {
		if a.ProductID == auction.ProductID && !a.Status.IsTerminal() {
			return fmt.Errorf("create auction for product %s: %w", auction.ProductID, biddingerrors.ErrAuctionExists)
		}
	}

	r.auctions[auction.AuctionID] = auction
	product.Status = models.ProductStatusScheduled
	product.UpdatedAt = auction.CreatedAt
	r.products[product.ProductID] = product
	return nil
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListAuctions returns all auctions, or only those in status when it is not empty
func (r *MemoryRepo) ListAuctions(_ context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctions := make([]models.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if status == "" || a.Status == status {
			auctions = append(auctions, a)
		}
	}
	sort.Slice(auctions, func(i, j int) bool {
		return auctions[i].CreatedAt.After(auctions[j].CreatedAt)
	})
	return auctions, nil
}

// ListDueAuctions returns auctions whose next timed transition is due at now
func (r *MemoryRepo) ListDueAuctions(_ context.Context, now time.Time) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []models.Auction
	for _, a := range r.auctions {
		switch {
		case a.Status == models.AuctionStatusPending && !a.StartTime.After(now):
			due = append(due, a)
		case a.Status == models.AuctionStatusActive && !a.EndTime.After(now):
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].EndTime.Before(due[j].EndTime)
	})
	return due, nil
}

// SaveAuction writes a new auction state if nobody else wrote it since it was read
func (r *MemoryRepo) SaveAuction(_ context.Context, auction models.Auction, productStatus models.ProductStatus) (models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(auction); err != nil {
		return models.Auction{}, fmt.Errorf("save auction %s: %w", auction.AuctionID, err)
	}
	if auction.WinningBidID != nil {
		bid, ok := r.bids[*auction.WinningBidID]
		if !ok || bid.AuctionID != auction.AuctionID {
			return models.Auction{}, fmt.Errorf("save auction %s: winning %w", auction.AuctionID, biddingerrors.ErrBidNotFound)
		}
		bid.IsWinning = true
		r.bids[bid.BidID] = bid
	}
	if productStatus != "" {
		if p, ok := r.products[auction.ProductID]; ok {
			p.Status = productStatus
			p.UpdatedAt = auction.UpdatedAt
			r.products[p.ProductID] = p
		}
	}

	auction.Version++
	r.auctions[auction.AuctionID] = auction
	return auction, nil
}

// RecordBid records a user's bid on an auction together with the auction's new price
func (r *MemoryRepo) RecordBid(_ context.Context, auction models.Auction, bid models.Bid) (models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bid.AuctionID != auction.AuctionID {
		return models.Auction{}, fmt.Errorf("record bid for auction %s: %w", auction.AuctionID, biddingerrors.ErrInvalidBid)
	}
	if err := r.checkVersion(auction); err != nil {
		return models.Auction{}, fmt.Errorf("record bid for auction %s: %w", auction.AuctionID, err)
	}
	if _, ok := r.bids[bid.BidID]; ok {
		return models.Auction{}, fmt.Errorf("record bid %s: %w", bid.BidID, biddingerrors.ErrConflict)
	}

	r.bids[bid.BidID] = bid
	r.auctionBids[bid.AuctionID] = append(r.auctionBids[bid.AuctionID], bid.BidID)
	r.addUserAuction(bid.UserID, bid.AuctionID)

	auction.Version++
	r.auctions[auction.AuctionID] = auction
	return auction, nil
}

// RemoveBid deletes a bid together with the auction's recomputed price
func (r *MemoryRepo) RemoveBid(_ context.Context, auction models.Auction, bidID string) (models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bid, ok := r.bids[bidID]
	if !ok || bid.AuctionID != auction.AuctionID {
		return models.Auction{}, fmt.Errorf("remove bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err := r.checkVersion(auction); err != nil {
		return models.Auction{}, fmt.Errorf("remove bid %s: %w", bidID, err)
	}

	delete(r.bids, bidID)
	ids := r.auctionBids[auction.AuctionID]
	for i, id := range ids {
		if id == bidID {
			r.auctionBids[auction.AuctionID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}

	auction.Version++
	r.auctions[auction.AuctionID] = auction
	return auction, nil
}

// GetBid returns a bid by id
func (r *MemoryRepo) GetBid(_ context.Context, bidID string) (models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bids[bidID]
	if !ok {
		return models.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return b, nil
}

// GetBidsByAuction returns all bids for an auction, highest amount first
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.auctionBids[auctionID]
	bids := make([]models.Bid, 0, len(ids))
	for _, id := range ids {
		bids = append(bids, r.bids[id])
	}
	sortBids(bids)
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (r *MemoryRepo) GetWinningBid(_ context.Context, auctionID string) (models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.auctionBids[auctionID]
	if len(ids) == 0 {
		return models.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	winning := r.bids[ids[0]]
	for _, id := range ids[1:] {
		b := r.bids[id]
		if b.Amount.GreaterThan(winning.Amount) || (b.Amount.Equal(winning.Amount) && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// GetAuctionsByBidder returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByBidder(_ context.Context, userID string) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auctionIDs := r.userAuctions[userID]
	auctions := make([]models.Auction, 0, len(auctionIDs))
	for _, id := range auctionIDs {
		if a, exists := r.auctions[id]; exists {
			auctions = append(auctions, a)
		}
	}
	return auctions, nil
}

// CreateOrder stores an order; a second order for the same bid is a conflict
func (r *MemoryRepo) CreateOrder(_ context.Context, order models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orderByBid[order.BidID]; ok {
		return fmt.Errorf("create order for bid %s: %w", order.BidID, biddingerrors.ErrOrderExists)
	}
	r.orders[order.OrderID] = order
	r.orderByBid[order.BidID] = order.OrderID
	return nil
}

// GetOrder returns an order by id
func (r *MemoryRepo) GetOrder(_ context.Context, orderID string) (models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("get order %s: %w", orderID, biddingerrors.ErrOrderNotFound)
	}
	return o, nil
}

// GetOrderByBid returns the order materialized from a winning bid
func (r *MemoryRepo) GetOrderByBid(_ context.Context, auctionID, bidID string) (models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.orderByBid[bidID]
	if !ok || r.orders[id].AuctionID != auctionID {
		return models.Order{}, fmt.Errorf("get order for bid %s: %w", bidID, biddingerrors.ErrOrderNotFound)
	}
	return r.orders[id], nil
}

// GetOrdersByAuction returns all orders of an auction, newest first
func (r *MemoryRepo) GetOrdersByAuction(_ context.Context, auctionID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, o := range r.orders {
		if o.AuctionID == auctionID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// GetOrdersByUser returns the orders a user bought or sold, newest first
func (r *MemoryRepo) GetOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := []models.Order{}
	for _, o := range r.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// UpdateOrder replaces an order if its status and payment status are still the ones it was read with
func (r *MemoryRepo) UpdateOrder(_ context.Context, order models.Order, fromStatus models.OrderStatus, fromPayment models.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.OrderID]
	if !ok {
		return fmt.Errorf("update order %s: %w", order.OrderID, biddingerrors.ErrOrderNotFound)
	}
	if stored.Status != fromStatus || stored.PaymentStatus != fromPayment {
		return fmt.Errorf("update order %s: %w", order.OrderID, biddingerrors.ErrStaleOrder)
	}
	r.orders[order.OrderID] = order
	return nil
}

// AddProduct adds a product to the repository. This method is intended for seeding and tests only.
func (r *MemoryRepo) AddProduct(product models.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ProductID] = product
}

// checkVersion must be called with r.mu held.
func (r *MemoryRepo) checkVersion(auction models.Auction) error {
	stored, ok := r.auctions[auction.AuctionID]
	if !ok {
		return biddingerrors.ErrAuctionNotFound
	}
	if stored.Version != auction.Version {
		return biddingerrors.ErrStaleAuction
	}
	return nil
}

func (r *MemoryRepo) addUserAuction(userID, auctionID string) {
	for _, id := range r.userAuctions[userID] {
		if id == auctionID {
			return
		}
	}
	r.userAuctions[userID] = append(r.userAuctions[userID], auctionID)
}

// sortBids orders bids by amount descending; equal amounts keep acceptance order.
func sortBids(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		return bids[i].Amount.GreaterThan(bids[j].Amount)
	})
}
