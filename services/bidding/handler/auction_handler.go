package handler

import (
	"errors"
	"net/http"

	auction "bidflow/internal/auctionService"
	"bidflow/internal/middleware"
	model "bidflow/internal/models"
	"bidflow/services/bidding/helpers"
	"bidflow/utils"

	"github.com/gin-gonic/gin"
)

var errNoIdentity = errors.New("missing caller identity")

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// CreateProductHandler handles POST /products
func (h *AuctionHandler) CreateProductHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	var req helpers.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateProductHandler", err)
		return
	}

	product, err := h.service.CreateProduct(c.Request.Context(), auction.CreateProductInput{
		OwnerID:       user.UserID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		StartingPrice: req.StartingPrice,
	})
	if err != nil {
		helpers.HandleServiceError(c, "CreateProductHandler", err, map[string]any{"owner_id": user.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, product, "product created successfully")
	helpers.LogSuccess("CreateProductHandler", "product created successfully", map[string]any{
		"product_id": product.ProductID,
		"owner_id":   product.OwnerID,
	})
}

// GetProductHandler handles GET /products/:product_id
func (h *AuctionHandler) GetProductHandler(c *gin.Context) {
	productID := c.Param("product_id")
	product, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		helpers.HandleServiceError(c, "GetProductHandler", err, map[string]any{"product_id": productID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, product, "product retrieved successfully")
}

// ListProductsHandler handles GET /products?owner_id=
func (h *AuctionHandler) ListProductsHandler(c *gin.Context) {
	ownerID := c.Query("owner_id")
	products, err := h.service.ListProducts(c.Request.Context(), ownerID)
	if err != nil {
		helpers.HandleServiceError(c, "ListProductsHandler", err, map[string]any{"owner_id": ownerID})
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	utils.JSONResponse(c, http.StatusOK, products, "products retrieved successfully")
}

// UpdateProductHandler handles PUT /products/:product_id
func (h *AuctionHandler) UpdateProductHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	var req helpers.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateProductHandler", err)
		return
	}

	productID := c.Param("product_id")
	product, err := h.service.UpdateProduct(c.Request.Context(), auction.UpdateProductInput{
		ProductID:     productID,
		Caller:        user,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		StartingPrice: req.StartingPrice,
	})
	if err != nil {
		helpers.HandleServiceError(c, "UpdateProductHandler", err, map[string]any{
			"product_id": productID,
			"user_id":    user.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, product, "product updated successfully")
	helpers.LogSuccess("UpdateProductHandler", "product updated successfully", map[string]any{"product_id": productID})
}

// ArchiveProductHandler handles DELETE /products/:product_id
func (h *AuctionHandler) ArchiveProductHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	productID := c.Param("product_id")
	product, err := h.service.ArchiveProduct(c.Request.Context(), productID, user)
	if err != nil {
		helpers.HandleServiceError(c, "ArchiveProductHandler", err, map[string]any{
			"product_id": productID,
			"user_id":    user.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, product, "product archived successfully")
}

// ScheduleAuctionHandler handles POST /auctions
func (h *AuctionHandler) ScheduleAuctionHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	var req helpers.ScheduleAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ScheduleAuctionHandler", err)
		return
	}

	a, err := h.service.ScheduleAuction(c.Request.Context(), auction.ScheduleAuctionInput{
		ProductID: req.ProductID,
		OwnerID:   user.UserID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		helpers.HandleServiceError(c, "ScheduleAuctionHandler", err, map[string]any{
			"product_id": req.ProductID,
			"owner_id":   user.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, a, "auction scheduled successfully")
	helpers.LogSuccess("ScheduleAuctionHandler", "auction scheduled successfully", map[string]any{
		"auction_id": a.AuctionID,
		"product_id": a.ProductID,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	auctionID := c.Param("auction_id")
	a, err := h.service.CancelAuction(c.Request.Context(), auctionID, user.UserID)
	if err != nil {
		helpers.HandleServiceError(c, "CancelAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, a, "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled successfully", map[string]any{"auction_id": auctionID})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	detail, err := h.service.GetAuctionDetail(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.AuctionDetailResponse{
		Auction: detail.Auction,
		Product: detail.Product,
		Bids:    helpers.NewBidResponses(detail.Bids),
	}, "auction retrieved successfully")
}

// ListAuctionsHandler handles GET /auctions?status=
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	status := model.AuctionStatus(c.Query("status"))
	auctions, err := h.service.ListAuctions(c.Request.Context(), status)
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, map[string]any{"status": string(status)})
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}
	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
}
