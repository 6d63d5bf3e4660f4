package api

import (
	"net/http"

	"leftuber-api/internal/models"
	"leftuber-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handler) listProducts(c *gin.Context) {
	filter := models.ProductFilter{
		Category:   c.Query("category"),
		Search:     c.Query("search"),
		MerchantID: c.Query("merchantId"),
	}
	if filter.MerchantID != "" {
		if _, err := uuid.Parse(filter.MerchantID); err != nil {
			c.JSON(http.StatusOK, []models.Product{})
			return
		}
	}

	products, err := h.inventory.ListAvailable(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) myProducts(c *gin.Context) {
	id, _ := identity(c)
	products, err := h.inventory.ListOwnedBy(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := h.pathID(c, "Product")
	if !ok {
		return
	}

	product, err := h.inventory.Get(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	id, _ := identity(c)
	product, err := h.inventory.Create(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	productID, ok := h.pathID(c, "Product")
	if !ok {
		return
	}

	var req service.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	id, _ := identity(c)
	product, err := h.inventory.Update(c.Request.Context(), id, productID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	productID, ok := h.pathID(c, "Product")
	if !ok {
		return
	}

	id, _ := identity(c)
	if err := h.inventory.Delete(c.Request.Context(), id, productID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
