package api

import (
	"net/http"

	"leftuber-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) listOrders(c *gin.Context) {
	id, _ := identity(c)
	orders, err := h.orders.ListOrders(c.Request.Context(), id, c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.pathID(c, "Order")
	if !ok {
		return
	}

	id, _ := identity(c)
	order, err := h.orders.GetOrder(c.Request.Context(), id, orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}
	if _, err := uuid.Parse(req.ProductID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found", "code": "NOT_FOUND"})
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	id, _ := identity(c)
	order, err := h.orders.CreateOrder(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := h.pathID(c, "Order")
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	id, _ := identity(c)
	order, err := h.orders.UpdateStatus(c.Request.Context(), id, orderID, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
