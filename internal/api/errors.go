package api

import (
	"errors"
	"net/http"
	"strings"

	"leftuber-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type errorKind struct {
	target error
	status int
	code   string
}

var errorKinds = []errorKind{
	{models.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
	{models.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{models.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{models.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{models.ErrOutOfStock, http.StatusBadRequest, "OUT_OF_STOCK"},
	{models.ErrInvalidOTP, http.StatusBadRequest, "INVALID_OTP"},
	{models.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	{models.ErrConflict, http.StatusConflict, "CONFLICT"},
}

// respondError writes the error body for err. Unclassified errors are
// logged and, in production, replaced by a generic message.
func (h *Handler) respondError(c *gin.Context, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			c.JSON(k.status, gin.H{"error": err.Error(), "code": k.code})
			return
		}
	}

	h.logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))

	message := err.Error()
	if h.opts.Production {
		message = "Internal server error"
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": message, "code": "INTERNAL"})
}

// FieldError describes one rejected request field
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// respondBindError reports a malformed request body
func (h *Handler) respondBindError(c *gin.Context, err error) {
	body := gin.H{"error": "Invalid request body", "code": "VALIDATION_ERROR"}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			details = append(details, FieldError{
				Field:   lowerFirst(e.Field()),
				Tag:     e.Tag(),
				Message: validationMessage(e),
			})
		}
		body["details"] = details
	} else {
		body["details"] = err.Error()
	}

	c.JSON(http.StatusBadRequest, body)
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return lowerFirst(e.Field()) + " is required"
	case "min":
		return lowerFirst(e.Field()) + " must be at least " + e.Param()
	default:
		return lowerFirst(e.Field()) + " is invalid"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// pathID returns the :id parameter. IDs that are not UUIDs cannot exist,
// so they are reported as not found.
func (h *Handler) pathID(c *gin.Context, kind string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": kind + " not found", "code": "NOT_FOUND"})
		return "", false
	}
	return id, true
}
