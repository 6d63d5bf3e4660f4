package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the account type of a user
type Role string

const (
	RoleBuyer    Role = "BUYER"
	RoleMerchant Role = "MERCHANT"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleMerchant
}

// DeliveryType is how the buyer receives an order
type DeliveryType string

const (
	DeliveryPickup   DeliveryType = "PICKUP"
	DeliveryDelivery DeliveryType = "DELIVERY"
)

// Valid reports whether d is a known delivery type
func (d DeliveryType) Valid() bool {
	return d == DeliveryPickup || d == DeliveryDelivery
}

// Popularity thresholds on the sales counter
const (
	HotThreshold        = 10
	BestSellerThreshold = 25
)

// OTP parameters
const (
	OTPLength   = 4
	OTPValidity = 5 * time.Minute
)

// Product defaults applied on creation
const (
	DefaultCategory   = "Fast Food"
	DefaultImage      = "https://images.unsplash.com/photo-1504674900247-0877df9cc836?auto=format&fit=crop&w=1200&q=80"
	DefaultPickupTime = "ASAP"
	DefaultQuantity   = 1

	// CategoryAll is the listing filter value meaning "any category"
	CategoryAll = "All"
)

// Categories lists the accepted product category tags
var Categories = []string{"Fast Food", "Vegetables", "Fruits", "Drinks", "Donuts"}

// ValidCategory reports whether c is one of Categories
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// PopularityFlags derives hot and bestSeller from a sales counter
func PopularityFlags(sales int) (hot, bestSeller bool) {
	return sales > HotThreshold, sales > BestSellerThreshold
}

// Identity is the authenticated caller, carried explicitly through every call
type Identity struct {
	UserID string
	Phone  string
	Role   Role
}

// User represents an account
type User struct {
	ID               string    `db:"id" json:"id"`
	Phone            string    `db:"phone" json:"phone"`
	Name             string    `db:"name" json:"name"`
	Role             Role      `db:"role" json:"role"`
	PushToken        *string   `db:"push_token" json:"pushToken"`
	ProfileCompleted bool      `db:"profile_completed" json:"profileCompleted"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// UserSummary is the denormalized user shown on products and orders
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Product represents a surplus listing owned by a merchant
type Product struct {
	ID            string              `db:"id" json:"id"`
	MerchantID    string              `db:"merchant_id" json:"merchantId"`
	Title         string              `db:"title" json:"title"`
	Description   string              `db:"description" json:"description"`
	Image         string              `db:"image" json:"image"`
	OriginalPrice decimal.NullDecimal `db:"original_price" json:"originalPrice"`
	OfferPrice    decimal.Decimal     `db:"offer_price" json:"offerPrice"`
	Quantity      int                 `db:"quantity" json:"quantity"`
	Category      string              `db:"category" json:"category"`
	PickupTime    string              `db:"pickup_time" json:"pickupTime"`
	Views         int                 `db:"views" json:"views"`
	SalesCount    int                 `db:"sales_count" json:"salesCount"`
	Hot           bool                `db:"hot" json:"hot"`
	BestSeller    bool                `db:"best_seller" json:"bestSeller"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updatedAt"`

	Merchant *UserSummary `db:"-" json:"merchant,omitempty"`
}

// ProductSummary is the product snapshot shown on orders
type ProductSummary struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Image      string          `json:"image"`
	OfferPrice decimal.Decimal `json:"offerPrice"`
}

// ProductFilter narrows listAvailable
type ProductFilter struct {
	Category   string
	Search     string
	MerchantID string
}

// ProductPatch carries a partial product update; unset fields stay unchanged
type ProductPatch struct {
	Title         Patch[string]
	Description   Patch[string]
	Image         Patch[string]
	Category      Patch[string]
	OriginalPrice Patch[decimal.NullDecimal]
	OfferPrice    Patch[decimal.Decimal]
	Quantity      Patch[int]
	PickupTime    Patch[string]
}

// Empty reports whether no field is set
func (p ProductPatch) Empty() bool {
	return !p.Title.Set && !p.Description.Set && !p.Image.Set && !p.Category.Set &&
		!p.OriginalPrice.Set && !p.OfferPrice.Set && !p.Quantity.Set && !p.PickupTime.Set
}

// Order represents a single-unit purchase of a product
type Order struct {
	ID             string          `db:"id" json:"id"`
	BuyerID        string          `db:"buyer_id" json:"buyerId"`
	MerchantID     string          `db:"merchant_id" json:"merchantId"`
	ProductID      string          `db:"product_id" json:"productId"`
	ProductTitle   string          `db:"product_title" json:"-"`
	ProductImage   string          `db:"product_image" json:"-"`
	DeliveryType   DeliveryType    `db:"delivery_type" json:"deliveryType"`
	AddressText    string          `db:"address_text" json:"addressText"`
	Latitude       *float64        `db:"latitude" json:"latitude"`
	Longitude      *float64        `db:"longitude" json:"longitude"`
	ScheduledDate  string          `db:"scheduled_date" json:"scheduledDate"`
	ScheduledTime  string          `db:"scheduled_time" json:"scheduledTime"`
	Note           string          `db:"note" json:"note"`
	Subtotal       decimal.Decimal `db:"subtotal" json:"subtotal"`
	DeliveryFee    decimal.Decimal `db:"delivery_fee" json:"deliveryFee"`
	Total          decimal.Decimal `db:"total" json:"total"`
	Status         OrderStatus     `db:"status" json:"status"`
	IdempotencyKey *string         `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`

	Product  *ProductSummary `db:"-" json:"product,omitempty"`
	Buyer    *UserSummary    `db:"-" json:"buyer,omitempty"`
	Merchant *UserSummary    `db:"-" json:"merchant,omitempty"`
}

// Snapshot fills the product summary from the columns copied at creation
func (o *Order) Snapshot() {
	o.Product = &ProductSummary{
		ID:         o.ProductID,
		Title:      o.ProductTitle,
		Image:      o.ProductImage,
		OfferPrice: o.Subtotal,
	}
}

// OrderFilter narrows listOrders; exactly one of BuyerID or MerchantID is set
type OrderFilter struct {
	BuyerID    string
	MerchantID string
	Status     OrderStatus
}

// OtpCode is a one-time login code issued to a phone
type OtpCode struct {
	ID        string    `db:"id" json:"id"`
	Phone     string    `db:"phone" json:"phone"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// UserPatch carries a partial user update
type UserPatch struct {
	Name             Patch[string]
	Role             Patch[Role]
	PushToken        Patch[string]
	ProfileCompleted Patch[bool]
}

// MerchantStats aggregates a merchant's activity
type MerchantStats struct {
	ProductCount int             `db:"product_count" json:"productCount"`
	OrderCount   int             `db:"order_count" json:"orderCount"`
	TotalSales   decimal.Decimal `db:"total_sales" json:"totalSales"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
