package handler

import (
	"context"

	auction "bidflow/internal/auctionService"
	bidding "bidflow/internal/biddingService"
	model "bidflow/internal/models"
	order "bidflow/internal/orderService"
)

//go:generate mockgen -source=services.go -destination=services_mock.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, in bidding.PlaceBidInput) (model.Bid, error)
	DeleteBid(ctx context.Context, bidID string) (model.Auction, error)
	GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, userID string) ([]model.Auction, error)
}

type AuctionServiceInterface interface {
	CreateProduct(ctx context.Context, in auction.CreateProductInput) (model.Product, error)
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	ListProducts(ctx context.Context, ownerID string) ([]model.Product, error)
	UpdateProduct(ctx context.Context, in auction.UpdateProductInput) (model.Product, error)
	ArchiveProduct(ctx context.Context, productID string, caller model.User) (model.Product, error)
	ScheduleAuction(ctx context.Context, in auction.ScheduleAuctionInput) (model.Auction, error)
	CancelAuction(ctx context.Context, auctionID, ownerID string) (model.Auction, error)
	GetAuctionDetail(ctx context.Context, auctionID string) (model.AuctionDetail, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
}

type OrderServiceInterface interface {
	Materialize(ctx context.Context, auctionID string) (model.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	UpdateOrder(ctx context.Context, in order.UpdateOrderInput) (model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, caller model.User) ([]model.Order, error)
	Manifest(ctx context.Context, auctionID string, caller model.User) (model.OrderManifest, error)
}
