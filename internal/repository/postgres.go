package repository

import (
	"bidflow/internal/biddingerrors"
	"bidflow/internal/models"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type txKey struct{}

// PostgresRepo implements AuctionDB on PostgreSQL. Auction-scoped
// serialization is a transaction holding the auction row lock.
type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const auctionColumns = `id, product_id, owner_id, status, start_time, end_time, starting_price,
current_price, winner_id, winning_bid_id, bid_count, version, created_at, updated_at`

const bidColumns = `id, auction_id, bidder_id, bidder_name, bidder_phone, amount, is_winning, created_at`

const orderColumns = `id, auction_id, bid_id, buyer_id, seller_id, customer_name, customer_phone,
delivery_address, notes, final_price, status, payment_status, created_at, updated_at`

func (r *PostgresRepo) WithAuctionLock(ctx context.Context, auctionID string, fn func(ctx context.Context) error) error {
	return r.withTx(ctx, func(ctx context.Context) error {
		var id string
		err := sqlx.GetContext(ctx, r.ext(ctx), &id, `SELECT id FROM auctions WHERE id = $1 FOR UPDATE`, auctionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lock auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
			}
			return wrapErr("lock auction", err)
		}
		return fn(ctx)
	})
}

func (r *PostgresRepo) CreateProduct(ctx context.Context, p models.Product) error {
	const query = `
        INSERT INTO products (id, owner_id, name, description, category, starting_price, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.ext(ctx).ExecContext(ctx, query,
		p.ProductID, p.OwnerID, p.Name, p.Description, p.Category, p.StartingPrice, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create product %s: %w", p.ProductID, biddingerrors.ErrConflict)
		}
		return wrapErr("create product", err)
	}
	return nil
}

func (r *PostgresRepo) GetProduct(ctx context.Context, productID string) (models.Product, error) {
	var p models.Product
	err := sqlx.GetContext(ctx, r.ext(ctx), &p, `SELECT * FROM products WHERE id = $1`, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
		}
		return models.Product{}, wrapErr("get product", err)
	}
	return p, nil
}

func (r *PostgresRepo) ListProducts(ctx context.Context, ownerID string) ([]models.Product, error) {
	products := []models.Product{}
	query := `SELECT * FROM products WHERE ($1 = '' OR owner_id = $1) ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &products, query, ownerID); err != nil {
		return nil, wrapErr("list products", err)
	}
	return products, nil
}

func (r *PostgresRepo) UpdateProduct(ctx context.Context, p models.Product) error {
	const query = `
        UPDATE products
        SET name = $2, description = $3, category = $4, starting_price = $5, status = $6, updated_at = $7
        WHERE id = $1 AND status NOT IN ('scheduled', 'active')`
	res, err := r.ext(ctx).ExecContext(ctx, query,
		p.ProductID, p.Name, p.Description, p.Category, p.StartingPrice, p.Status, p.UpdatedAt)
	if err != nil {
		return wrapErr("update product", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetProduct(ctx, p.ProductID); err != nil {
			return err
		}
		return fmt.Errorf("update product %s: %w", p.ProductID, biddingerrors.ErrProductLive)
	}
	return nil
}

func (r *PostgresRepo) CreateAuction(ctx context.Context, a models.Auction) error {
	return r.withTx(ctx, func(ctx context.Context) error {
		const insert = `
            INSERT INTO auctions (id, product_id, owner_id, status, start_time, end_time, starting_price,
                current_price, bid_count, version, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		_, err := r.ext(ctx).ExecContext(ctx, insert,
			a.AuctionID, a.ProductID, a.OwnerID, a.Status, a.StartTime, a.EndTime, a.StartingPrice,
			a.CurrentPrice, a.BidCount, a.Version, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create auction for product %s: %w", a.ProductID, biddingerrors.ErrAuctionExists)
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("create auction for product %s: %w", a.ProductID, biddingerrors.ErrProductNotFound)
			}
			return wrapErr("create auction", err)
		}

		// the row lock taken here orders this against a concurrent UpdateProduct
		res, err := r.ext(ctx).ExecContext(ctx, `
            UPDATE products SET status = $2, updated_at = $3
            WHERE id = $1 AND status NOT IN ('sold', 'archived')`,
			a.ProductID, models.ProductStatusScheduled, a.CreatedAt)
		if err != nil {
			return wrapErr("schedule product", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("create auction for product %s: %w", a.ProductID, biddingerrors.ErrProductNotListed)
		}
		return nil
	})
}

func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	var a models.Auction
	err := sqlx.GetContext(ctx, r.ext(ctx), &a, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return models.Auction{}, wrapErr("get auction", err)
	}
	return a, nil
}

func (r *PostgresRepo) ListAuctions(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	auctions := []models.Auction{}
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &auctions, query, string(status)); err != nil {
		return nil, wrapErr("list auctions", err)
	}
	return auctions, nil
}

func (r *PostgresRepo) ListDueAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	auctions := []models.Auction{}
	query := `
        SELECT ` + auctionColumns + ` FROM auctions
        WHERE (status = 'pending' AND start_time <= $1)
           OR (status = 'active' AND end_time <= $1)
        ORDER BY end_time`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &auctions, query, now); err != nil {
		return nil, wrapErr("list due auctions", err)
	}
	return auctions, nil
}

func (r *PostgresRepo) SaveAuction(ctx context.Context, a models.Auction, productStatus models.ProductStatus) (models.Auction, error) {
	var saved models.Auction
	err := r.withTx(ctx, func(ctx context.Context) error {
		var err error
		if saved, err = r.updateAuction(ctx, a); err != nil {
			return err
		}
		if a.WinningBidID != nil {
			res, err := r.ext(ctx).ExecContext(ctx,
				`UPDATE bids SET is_winning = TRUE WHERE id = $1 AND auction_id = $2`, *a.WinningBidID, a.AuctionID)
			if err != nil {
				return wrapErr("mark winning bid", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("save auction %s: winning %w", a.AuctionID, biddingerrors.ErrBidNotFound)
			}
		}
		if productStatus != "" {
			return r.setProductStatus(ctx, a.ProductID, productStatus, a.UpdatedAt)
		}
		return nil
	})
	return saved, err
}

func (r *PostgresRepo) RecordBid(ctx context.Context, a models.Auction, b models.Bid) (models.Auction, error) {
	if b.AuctionID != a.AuctionID {
		return models.Auction{}, fmt.Errorf("record bid for auction %s: %w", a.AuctionID, biddingerrors.ErrInvalidBid)
	}
	var saved models.Auction
	err := r.withTx(ctx, func(ctx context.Context) error {
		var err error
		if saved, err = r.updateAuction(ctx, a); err != nil {
			return err
		}
		const insert = `
            INSERT INTO bids (` + bidColumns + `)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err = r.ext(ctx).ExecContext(ctx, insert,
			b.BidID, b.AuctionID, b.UserID, b.BidderName, b.BidderPhone, b.Amount, b.IsWinning, b.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("record bid %s: %w", b.BidID, biddingerrors.ErrConflict)
			}
			return wrapErr("record bid", err)
		}
		return nil
	})
	return saved, err
}

func (r *PostgresRepo) RemoveBid(ctx context.Context, a models.Auction, bidID string) (models.Auction, error) {
	var saved models.Auction
	err := r.withTx(ctx, func(ctx context.Context) error {
		res, err := r.ext(ctx).ExecContext(ctx, `DELETE FROM bids WHERE id = $1 AND auction_id = $2`, bidID, a.AuctionID)
		if err != nil {
			return wrapErr("remove bid", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("remove bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
		}
		saved, err = r.updateAuction(ctx, a)
		return err
	})
	return saved, err
}

func (r *PostgresRepo) GetBid(ctx context.Context, bidID string) (models.Bid, error) {
	var b models.Bid
	err := sqlx.GetContext(ctx, r.ext(ctx), &b, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, bidID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
		}
		return models.Bid{}, wrapErr("get bid", err)
	}
	return b, nil
}

func (r *PostgresRepo) GetBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	bids := []models.Bid{}
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ORDER BY amount DESC, created_at`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &bids, query, auctionID); err != nil {
		return nil, wrapErr("get bids by auction", err)
	}
	return bids, nil
}

func (r *PostgresRepo) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	var b models.Bid
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = $1 ORDER BY amount DESC, created_at LIMIT 1`
	err := sqlx.GetContext(ctx, r.ext(ctx), &b, query, auctionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
		}
		return models.Bid{}, wrapErr("get winning bid", err)
	}
	return b, nil
}

func (r *PostgresRepo) GetAuctionsByBidder(ctx context.Context, userID string) ([]models.Auction, error) {
	auctions := []models.Auction{}
	query := `
        SELECT ` + auctionColumns + ` FROM auctions
        WHERE id IN (SELECT DISTINCT auction_id FROM bids WHERE bidder_id = $1)
        ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &auctions, query, userID); err != nil {
		return nil, wrapErr("get auctions by bidder", err)
	}
	return auctions, nil
}

func (r *PostgresRepo) CreateOrder(ctx context.Context, o models.Order) error {
	const insert = `
        INSERT INTO orders (` + orderColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.ext(ctx).ExecContext(ctx, insert,
		o.OrderID, o.AuctionID, o.BidID, o.BuyerID, o.SellerID, o.CustomerName, o.CustomerPhone,
		o.DeliveryAddress, o.Notes, o.FinalPrice, o.Status, o.PaymentStatus, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create order for bid %s: %w", o.BidID, biddingerrors.ErrOrderExists)
		}
		return wrapErr("create order", err)
	}
	return nil
}

func (r *PostgresRepo) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	var o models.Order
	err := sqlx.GetContext(ctx, r.ext(ctx), &o, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, fmt.Errorf("get order %s: %w", orderID, biddingerrors.ErrOrderNotFound)
		}
		return models.Order{}, wrapErr("get order", err)
	}
	return o, nil
}

func (r *PostgresRepo) GetOrderByBid(ctx context.Context, auctionID, bidID string) (models.Order, error) {
	var o models.Order
	query := `SELECT ` + orderColumns + ` FROM orders WHERE auction_id = $1 AND bid_id = $2`
	err := sqlx.GetContext(ctx, r.ext(ctx), &o, query, auctionID, bidID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, fmt.Errorf("get order for bid %s: %w", bidID, biddingerrors.ErrOrderNotFound)
		}
		return models.Order{}, wrapErr("get order by bid", err)
	}
	return o, nil
}

func (r *PostgresRepo) GetOrdersByAuction(ctx context.Context, auctionID string) ([]models.Order, error) {
	orders := []models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE auction_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &orders, query, auctionID); err != nil {
		return nil, wrapErr("get orders by auction", err)
	}
	return orders, nil
}

func (r *PostgresRepo) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &orders, query, userID); err != nil {
		return nil, wrapErr("get orders by user", err)
	}
	return orders, nil
}

func (r *PostgresRepo) UpdateOrder(ctx context.Context, o models.Order, fromStatus models.OrderStatus, fromPayment models.PaymentStatus) error {
	const query = `
        UPDATE orders
        SET status = $2, payment_status = $3, delivery_address = $4, notes = $5, updated_at = $6
        WHERE id = $1 AND status = $7 AND payment_status = $8`
	res, err := r.ext(ctx).ExecContext(ctx, query,
		o.OrderID, o.Status, o.PaymentStatus, o.DeliveryAddress, o.Notes, o.UpdatedAt, fromStatus, fromPayment)
	if err != nil {
		return wrapErr("update order", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetOrder(ctx, o.OrderID); err != nil {
			return err
		}
		return fmt.Errorf("update order %s: %w", o.OrderID, biddingerrors.ErrStaleOrder)
	}
	return nil
}

// updateAuction is the conditional write shared by every auction mutation.
func (r *PostgresRepo) updateAuction(ctx context.Context, a models.Auction) (models.Auction, error) {
	const query = `
        UPDATE auctions
        SET status = $3, current_price = $4, winner_id = $5, winning_bid_id = $6,
            bid_count = $7, updated_at = $8, version = version + 1
        WHERE id = $1 AND version = $2`
	res, err := r.ext(ctx).ExecContext(ctx, query,
		a.AuctionID, a.Version, a.Status, a.CurrentPrice, a.WinnerID, a.WinningBidID, a.BidCount, a.UpdatedAt)
	if err != nil {
		return models.Auction{}, wrapErr("update auction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetAuction(ctx, a.AuctionID); err != nil {
			return models.Auction{}, err
		}
		return models.Auction{}, fmt.Errorf("update auction %s: %w", a.AuctionID, biddingerrors.ErrStaleAuction)
	}
	a.Version++
	return a, nil
}

func (r *PostgresRepo) setProductStatus(ctx context.Context, productID string, status models.ProductStatus, at time.Time) error {
	res, err := r.ext(ctx).ExecContext(ctx,
		`UPDATE products SET status = $2, updated_at = $3 WHERE id = $1`, productID, status, at)
	if err != nil {
		return wrapErr("set product status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set product status %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return nil
}

func (r *PostgresRepo) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return wrapErr("begin tx", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("commit tx", err)
	}
	return nil
}

func (r *PostgresRepo) ext(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// wrapErr marks connection-level failures as biddingerrors.ErrUnavailable so callers can retry.
func wrapErr(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08: connection exception, 57P0x: server shutting down
		return pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P0")
	}
	return false
}
