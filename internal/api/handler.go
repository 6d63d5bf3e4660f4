package api

import (
	"context"
	"net/http"
	"time"

	"leftuber-api/internal/models"
	"leftuber-api/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// InventoryService is the product catalogue as seen by the handlers
type InventoryService interface {
	ListAvailable(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	ListOwnedBy(ctx context.Context, merchantID string) ([]models.Product, error)
	Get(ctx context.Context, productID string) (*models.Product, error)
	Create(ctx context.Context, requester models.Identity, req *service.CreateProductRequest) (*models.Product, error)
	Update(ctx context.Context, requester models.Identity, productID string, req *service.UpdateProductRequest) (*models.Product, error)
	Delete(ctx context.Context, requester models.Identity, productID string) error
}

// OrderService is the order workflow as seen by the handlers
type OrderService interface {
	CreateOrder(ctx context.Context, buyer models.Identity, req *service.CreateOrderRequest) (*models.Order, error)
	ListOrders(ctx context.Context, requester models.Identity, status string) ([]models.Order, error)
	GetOrder(ctx context.Context, requester models.Identity, orderID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, requester models.Identity, orderID, status string) (*models.Order, error)
}

// AuthService is the OTP gate as seen by the handlers
type AuthService interface {
	RequestCode(ctx context.Context, phone string) (*service.CodeIssued, error)
	VerifyCode(ctx context.Context, phone, code string) (*service.Session, error)
	CompleteProfile(ctx context.Context, requester models.Identity, role, name string) (*service.Session, error)
}

// UserService serves the caller's profile
type UserService interface {
	Me(ctx context.Context, requester models.Identity) (*models.User, error)
	UpdateMe(ctx context.Context, requester models.Identity, req *service.UpdateMeRequest) (*models.User, error)
	Stats(ctx context.Context, requester models.Identity) (*models.MerchantStats, error)
}

// TokenParser verifies bearer tokens
type TokenParser interface {
	Parse(token string) (models.Identity, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP layer
type Options struct {
	Production        bool
	AllowedOrigins    []string
	RequestTimeout    time.Duration
	AuthRatePerMinute int
	// Dependencies probed by /ready, by name
	Readiness map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	inventory   InventoryService
	orders      OrderService
	auth        AuthService
	users       UserService
	tokens      TokenParser
	opts        Options
	authLimiter *RateLimiter
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	inventory InventoryService,
	orders OrderService,
	auth AuthService,
	users UserService,
	tokens TokenParser,
	logger *zap.Logger,
	opts Options,
) *Handler {
	perMinute := opts.AuthRatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	return &Handler{
		inventory:   inventory,
		orders:      orders,
		auth:        auth,
		users:       users,
		tokens:      tokens,
		opts:        opts,
		authLimiter: NewRateLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:      logger,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))
	router.Use(cors.New(corsConfig(h.opts.AllowedOrigins)))
	if h.opts.RequestTimeout > 0 {
		router.Use(requestTimeout(h.opts.RequestTimeout))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth", h.authLimiter.Middleware())
	{
		auth.POST("/send-otp", h.sendOTP)
		auth.POST("/verify-otp", h.verifyOTP)
		auth.POST("/update-role", h.requireAuth(), h.updateRole)
	}

	products := v1.Group("/products")
	{
		products.GET("", h.optionalAuth(), h.listProducts)
		products.GET("/my", h.requireAuth(), h.myProducts)
		products.GET("/:id", h.optionalAuth(), h.getProduct)
		products.POST("", h.requireAuth(), requireMerchant(), h.createProduct)
		products.PUT("/:id", h.requireAuth(), h.updateProduct)
		products.DELETE("/:id", h.requireAuth(), h.deleteProduct)
	}

	orders := v1.Group("/orders", h.requireAuth())
	{
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("", h.createOrder)
		orders.PUT("/:id/status", h.updateOrderStatus)
	}

	users := v1.Group("/users", h.requireAuth())
	{
		users.GET("/me", h.getMe)
		users.PUT("/me", h.updateMe)
		users.GET("/stats", h.merchantStats)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "Idempotency-Key")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports the ones that fail
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.opts.Readiness {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// CleanupLimiters evicts idle rate-limit buckets until ctx is done
func (h *Handler) CleanupLimiters(ctx context.Context) {
	h.authLimiter.Cleanup(ctx, 3*time.Minute)
}
