package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidflow/db/migrations"
	auction "bidflow/internal/auctionService"
	bidding "bidflow/internal/biddingService"
	"bidflow/internal/clock"
	"bidflow/internal/config"
	"bidflow/internal/middleware"
	model "bidflow/internal/models"
	order "bidflow/internal/orderService"
	"bidflow/internal/realtime"
	"bidflow/internal/repository"
	"bidflow/internal/server"
	"bidflow/internal/sweeper"
	"bidflow/utils"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		utils.Fatal("failed to open repository", map[string]any{"driver": cfg.StorageDriver, "error": err.Error()})
	}
	defer closeRepo()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	publisher := realtime.Multi{hub}
	if cfg.RedisAddr != "" {
		redisPub := realtime.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword)
		if err := redisPub.Ping(ctx); err != nil {
			utils.Warn("redis unavailable, events stay in-process", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
		} else {
			publisher = append(publisher, redisPub)
			defer redisPub.Close()
		}
	}

	clk := clock.NewSystem()
	auctionSvc := auction.NewAuctionService(repo, clk, publisher)
	biddingSvc := bidding.NewBiddingService(repo, clk, publisher)
	orderSvc := order.NewOrderService(repo, clk, publisher)
	resolver := middleware.NewJWTResolver(cfg.JWTSecret)

	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, auctionSvc, resolver, clk); err != nil {
			utils.Error("failed to seed demo data", map[string]any{"error": err.Error()})
		}
	}

	sweep := sweeper.New(auctionSvc, orderSvc, publisher, clk, cfg.SweepInterval, cfg.SweepConcurrency, cfg.SweepAuctionTimeout)
	sweepDone := sweep.Start(ctx)

	router := server.SetupRouter(server.Dependencies{
		Bidding:  biddingSvc,
		Auctions: auctionSvc,
		Orders:   orderSvc,
		Resolver: resolver,
		Realtime: hub.ServeWS,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("Starting auction server", map[string]any{
			"port":        cfg.Port,
			"storage":     cfg.StorageDriver,
			"environment": cfg.Environment,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("server stopped unexpectedly", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	utils.Info("Shutting down auction server", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}

	// the repository is closed by a deferred call, so the sweeper must be done first
	<-sweepDone
}

// openRepository returns the configured storage backend and a function releasing it
func openRepository(cfg *config.Config) (repository.AuctionDB, func(), error) {
	if cfg.StorageDriver != config.StoragePostgres {
		return repository.NewMemoryRepo(), func() {}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrations.Run(db.DB); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return repository.NewPostgresRepo(db), func() { db.Close() }, nil
}

// seedDemoData lists a few products with running auctions and logs tokens for trying the API
func seedDemoData(ctx context.Context, svc *auction.AuctionService, resolver *middleware.JWTResolver, clk clock.Clock) error {
	seller := model.User{UserID: "demo-seller", Username: "Demo Seller", Role: model.RoleSeller}
	products := []auction.CreateProductInput{
		{OwnerID: seller.UserID, Name: "Vintage camera", Description: "Rangefinder, 1962", Category: "photo", StartingPrice: decimal.NewFromInt(100)},
		{OwnerID: seller.UserID, Name: "Oak desk", Description: "Solid oak writing desk", Category: "furniture", StartingPrice: decimal.NewFromInt(200)},
		{OwnerID: seller.UserID, Name: "Signed vinyl", Description: "First pressing", Category: "music", StartingPrice: decimal.NewFromInt(150)},
	}

	now := clk.Now()
	for i, in := range products {
		p, err := svc.CreateProduct(ctx, in)
		if err != nil {
			return err
		}
		a, err := svc.ScheduleAuction(ctx, auction.ScheduleAuctionInput{
			ProductID: p.ProductID,
			OwnerID:   seller.UserID,
			StartTime: now,
			EndTime:   now.Add(time.Duration(i+1) * 10 * time.Minute),
		})
		if err != nil {
			return err
		}
		utils.Info("seeded auction", map[string]any{"auction_id": a.AuctionID, "product": p.Name, "ends_at": a.EndTime})
	}

	for _, u := range []model.User{
		seller,
		{UserID: "demo-buyer", Username: "Demo Buyer", Role: model.RoleBuyer},
		{UserID: "demo-admin", Username: "Demo Admin", Role: model.RoleAdmin},
	} {
		token, err := resolver.Issue(u, 24*time.Hour)
		if err != nil {
			return err
		}
		utils.Info("demo token", map[string]any{"user_id": u.UserID, "role": string(u.Role), "token": token})
	}
	return nil
}
