package service

import (
	"context"
	"time"

	"leftuber-api/internal/models"
)

// ProductStore persists products. *store.Store implements it.
type ProductStore interface {
	ListAvailableProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	ListProductsByMerchant(ctx context.Context, merchantID string) ([]models.Product, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	RecordProductView(ctx context.Context, id string) error
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// OrderStore persists orders together with their stock effects
type OrderStore interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	PlaceOrder(ctx context.Context, order *models.Order) (*models.Product, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, buyerID, key string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, order *models.Order, to models.OrderStatus) (bool, error)
}

// UserStore persists accounts
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, patch models.UserPatch) (*models.User, error)
	MerchantStats(ctx context.Context, merchantID string) (*models.MerchantStats, error)
}

// OTPStore persists issued login codes
type OTPStore interface {
	CreateOTP(ctx context.Context, otp *models.OtpCode) error
	ConsumeOTP(ctx context.Context, phone, code string, now time.Time) (*models.OtpCode, error)
	DeleteStaleOTPs(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventStore remembers consumed events so redeliveries are skipped
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// EventPublisher emits domain events. *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOTPRequested(ctx context.Context, event *models.OTPRequestedEvent) error
}

// OTPLimiter throttles code requests and failed verifications per phone.
// *redisclient.Client implements it.
type OTPLimiter interface {
	AcquireCooldown(ctx context.Context, phone string, ttl time.Duration) (bool, error)
	ReleaseCooldown(ctx context.Context, phone string) error
	IncrementAttempts(ctx context.Context, phone string, window time.Duration) (int, error)
	Attempts(ctx context.Context, phone string) (int, error)
	ResetAttempts(ctx context.Context, phone string) error
}

// TokenIssuer signs session credentials
type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}
