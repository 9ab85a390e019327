package server

import (
	"net/http"

	"bidflow/internal/middleware"
	model "bidflow/internal/models"
	handler "bidflow/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// Dependencies groups everything the HTTP layer needs
type Dependencies struct {
	Bidding  handler.BiddingServiceInterface
	Auctions handler.AuctionServiceInterface
	Orders   handler.OrderServiceInterface
	Resolver middleware.Resolver
	// Realtime serves GET /ws. Nil disables the endpoint.
	Realtime gin.HandlerFunc
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(deps.Bidding)
	auctionHandler := handler.NewAuctionHandler(deps.Auctions)
	orderHandler := handler.NewOrderHandler(deps.Orders)

	requireAuth := middleware.RequireAuth(deps.Resolver)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	products := router.Group("/products")
	{
		products.POST("", requireAuth, middleware.RequireRole(model.RoleSeller, model.RoleAdmin), auctionHandler.CreateProductHandler)
		products.GET("", auctionHandler.ListProductsHandler)
		products.GET("/:product_id", auctionHandler.GetProductHandler)
		products.PUT("/:product_id", requireAuth, auctionHandler.UpdateProductHandler)
		products.DELETE("/:product_id", requireAuth, auctionHandler.ArchiveProductHandler)
	}

	auctions := router.Group("/auctions")
	{
		auctions.POST("", requireAuth, auctionHandler.ScheduleAuctionHandler)
		auctions.GET("", auctionHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		auctions.POST("/:auction_id/cancel", requireAuth, auctionHandler.CancelAuctionHandler)

		auctions.POST("/:auction_id/bids", middleware.OptionalAuth(deps.Resolver), biddingHandler.PlaceBidHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsByAuctionHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)

		auctions.POST("/:auction_id/order", requireAuth, orderHandler.MaterializeOrderHandler)
		auctions.GET("/:auction_id/orders", requireAuth, orderHandler.ManifestHandler)
	}

	bids := router.Group("/bids")
	{
		bids.DELETE("/:bid_id", requireAuth, middleware.RequireRole(model.RoleAdmin), biddingHandler.DeleteBidHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
		users.GET("/:user_id/orders", requireAuth, orderHandler.ListUserOrdersHandler)
	}

	orders := router.Group("/orders")
	{
		orders.GET("/:order_id", requireAuth, orderHandler.GetOrderHandler)
		orders.PATCH("/:order_id", requireAuth, orderHandler.UpdateOrderHandler)
	}

	if deps.Realtime != nil {
		router.GET("/ws", deps.Realtime)
	}

	return router
}
