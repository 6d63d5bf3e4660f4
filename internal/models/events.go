package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOTPRequested       = "OTP_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after an order and its stock decrement commit
type OrderCreatedEvent struct {
	BaseEvent
	OrderID      string          `json:"order_id"`
	BuyerID      string          `json:"buyer_id"`
	MerchantID   string          `json:"merchant_id"`
	ProductID    string          `json:"product_id"`
	DeliveryType DeliveryType    `json:"delivery_type"`
	Total        decimal.Decimal `json:"total"`
	StockLeft    int             `json:"stock_left"`
}

// OrderStatusChangedEvent published when a merchant moves an order
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    string      `json:"order_id"`
	BuyerID    string      `json:"buyer_id"`
	MerchantID string      `json:"merchant_id"`
	ProductID  string      `json:"product_id"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	Restocked  bool        `json:"restocked"`
}

// OTPRequestedEvent asks the delivery worker to send a code to a phone
type OTPRequestedEvent struct {
	BaseEvent
	Phone     string    `json:"phone"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
