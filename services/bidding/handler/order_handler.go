package handler

import (
	"fmt"
	"net/http"

	"bidflow/internal/biddingerrors"
	"bidflow/internal/middleware"
	model "bidflow/internal/models"
	order "bidflow/internal/orderService"
	"bidflow/services/bidding/helpers"
	"bidflow/utils"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service OrderServiceInterface
}

func NewOrderHandler(service OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: service}
}

// MaterializeOrderHandler handles POST /auctions/:auction_id/order
func (h *OrderHandler) MaterializeOrderHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	o, created, err := h.service.Materialize(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "MaterializeOrderHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	if !created {
		utils.JSONResponse(c, http.StatusOK, o, "order already exists")
		return
	}
	utils.JSONResponse(c, http.StatusCreated, o, "order created successfully")
	helpers.LogSuccess("MaterializeOrderHandler", "order created successfully", map[string]any{
		"order_id":   o.OrderID,
		"auction_id": auctionID,
	})
}

// GetOrderHandler handles GET /orders/:order_id
func (h *OrderHandler) GetOrderHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	orderID := c.Param("order_id")
	o, err := h.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		helpers.HandleServiceError(c, "GetOrderHandler", err, map[string]any{"order_id": orderID})
		return
	}
	if user.Role != model.RoleAdmin && user.UserID != o.BuyerID && user.UserID != o.SellerID {
		err := fmt.Errorf("order %s: %w", orderID, biddingerrors.ErrNotOwner)
		helpers.HandleServiceError(c, "GetOrderHandler", err, map[string]any{"order_id": orderID, "user_id": user.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, o, "order retrieved successfully")
}

// UpdateOrderHandler handles PATCH /orders/:order_id
func (h *OrderHandler) UpdateOrderHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	var req helpers.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateOrderHandler", err)
		return
	}

	orderID := c.Param("order_id")
	o, err := h.service.UpdateOrder(c.Request.Context(), order.UpdateOrderInput{
		OrderID:         orderID,
		CallerID:        user.UserID,
		CallerRole:      user.Role,
		Status:          req.Status,
		PaymentStatus:   req.PaymentStatus,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		helpers.HandleServiceError(c, "UpdateOrderHandler", err, map[string]any{"order_id": orderID, "user_id": user.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, o, "order updated successfully")
	helpers.LogSuccess("UpdateOrderHandler", "order updated successfully", map[string]any{
		"order_id": orderID,
		"status":   string(o.Status),
		"payment":  string(o.PaymentStatus),
	})
}

// ListUserOrdersHandler handles GET /users/:user_id/orders
func (h *OrderHandler) ListUserOrdersHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	userID := c.Param("user_id")
	orders, err := h.service.ListOrdersByUser(c.Request.Context(), userID, user)
	if err != nil {
		helpers.HandleServiceError(c, "ListUserOrdersHandler", err, map[string]any{
			"user_id":   userID,
			"caller_id": user.UserID,
		})
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	utils.JSONResponse(c, http.StatusOK, orders, "orders retrieved successfully")
}

// ManifestHandler handles GET /auctions/:auction_id/orders.
// Only the auction owner and admins see buyer contact details.
func (h *OrderHandler) ManifestHandler(c *gin.Context) {
	user, ok := middleware.IdentityFrom(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, errNoIdentity, "Authentication required")
		return
	}

	auctionID := c.Param("auction_id")
	manifest, err := h.service.Manifest(c.Request.Context(), auctionID, user)
	if err != nil {
		helpers.HandleServiceError(c, "ManifestHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    user.UserID,
		})
		return
	}
	utils.JSONResponse(c, http.StatusOK, manifest, "manifest retrieved successfully")
}
