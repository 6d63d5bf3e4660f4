package api

import (
	"net/http"

	"leftuber-api/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getMe(c *gin.Context) {
	id, _ := identity(c)
	user, err := h.users.Me(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) updateMe(c *gin.Context) {
	var req service.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	id, _ := identity(c)
	user, err := h.users.UpdateMe(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) merchantStats(c *gin.Context) {
	id, _ := identity(c)
	stats, err := h.users.Stats(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
