package api

import (
	"net/http"

	"leftuber-api/internal/service"

	"github.com/gin-gonic/gin"
)

// sendOTP handles code requests
func (h *Handler) sendOTP(c *gin.Context) {
	var req service.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	issued, err := h.auth.RequestCode(c.Request.Context(), req.Phone)
	if err != nil {
		h.respondError(c, err)
		return
	}

	body := gin.H{
		"success":   true,
		"message":   "OTP sent successfully",
		"expiresAt": issued.ExpiresAt,
	}
	if issued.Code != "" {
		body["otp"] = issued.Code
	}
	c.JSON(http.StatusOK, body)
}

// verifyOTP exchanges a code for a session token
func (h *Handler) verifyOTP(c *gin.Context) {
	var req service.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	session, err := h.auth.VerifyCode(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     session.Token,
		"user":      session.User,
		"isNewUser": session.IsNewUser,
	})
}

// updateRole completes the caller's profile
func (h *Handler) updateRole(c *gin.Context) {
	var req service.CompleteProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	id, _ := identity(c)
	session, err := h.auth.CompleteProfile(c.Request.Context(), id, req.Role, req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   session.Token,
		"user":    session.User,
	})
}
