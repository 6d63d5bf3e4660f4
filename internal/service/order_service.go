package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles order business logic
type OrderService struct {
	store          OrderStore
	eventPublisher EventPublisher
	deliveryFee    decimal.Decimal
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, eventPublisher EventPublisher, deliveryFee decimal.Decimal) *OrderService {
	return &OrderService{
		store:          store,
		eventPublisher: eventPublisher,
		deliveryFee:    deliveryFee,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to buy one unit of a product
type CreateOrderRequest struct {
	ProductID      string   `json:"productId" binding:"required"`
	DeliveryType   string   `json:"deliveryType"`
	AddressText    string   `json:"addressText"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	ScheduledDate  string   `json:"scheduledDate"`
	ScheduledTime  string   `json:"scheduledTime"`
	Note           string   `json:"note"`
	IdempotencyKey string   `json:"-"`
}

// UpdateStatusRequest represents a merchant's status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateOrder places an order and takes one unit of stock atomically
func (s *OrderService) CreateOrder(ctx context.Context, buyer models.Identity, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, buyer.UserID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", existing.ID))
			return existing, nil
		}
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("product_lookup").Inc()
		return nil, err
	}
	if product.Quantity <= 0 {
		util.OrdersFailedTotal.WithLabelValues("out_of_stock").Inc()
		return nil, fmt.Errorf("%w: product %s", models.ErrOutOfStock, product.ID)
	}

	order, err := s.newOrder(buyer, product, req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	timer := prometheus.NewTimer(util.PlaceOrderLatency)
	updated, err := s.store.PlaceOrder(ctx, order)
	timer.ObserveDuration()
	if err != nil {
		switch {
		case errors.Is(err, models.ErrOutOfStock):
			util.OrdersFailedTotal.WithLabelValues("out_of_stock").Inc()
			return nil, err
		case errors.Is(err, models.ErrConflict) && req.IdempotencyKey != "":
			// a concurrent request with the same key won the insert
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, buyer.UserID, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("product_id", order.ProductID),
		zap.Int("stock_left", updated.Quantity))

	event := &models.OrderCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderCreated),
		OrderID:      order.ID,
		BuyerID:      order.BuyerID,
		MerchantID:   order.MerchantID,
		ProductID:    order.ProductID,
		DeliveryType: order.DeliveryType,
		Total:        order.Total,
		StockLeft:    updated.Quantity,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	created, err := s.store.GetOrderByID(ctx, order.ID)
	if err != nil {
		s.logger.Warn("Failed to reload created order", zap.String("order_id", order.ID), zap.Error(err))
		order.Snapshot()
		order.Merchant = product.Merchant
		return order, nil
	}
	return created, nil
}

func (s *OrderService) newOrder(buyer models.Identity, product *models.Product, req *CreateOrderRequest) (*models.Order, error) {
	deliveryType := models.DeliveryType(strings.ToUpper(strings.TrimSpace(req.DeliveryType)))
	if deliveryType == "" {
		deliveryType = models.DeliveryPickup
	}
	if !deliveryType.Valid() {
		return nil, fmt.Errorf("%w: unknown delivery type %q", models.ErrValidation, req.DeliveryType)
	}

	hasCoords := req.Latitude != nil && req.Longitude != nil
	if hasCoords {
		if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
			return nil, fmt.Errorf("%w: coordinates out of range", models.ErrValidation)
		}
	}

	address := strings.TrimSpace(req.AddressText)
	if deliveryType == models.DeliveryDelivery && address == "" && !hasCoords {
		return nil, fmt.Errorf("%w: delivery address required", models.ErrValidation)
	}

	order := &models.Order{
		ID:            uuid.New().String(),
		BuyerID:       buyer.UserID,
		MerchantID:    product.MerchantID,
		ProductID:     product.ID,
		ProductTitle:  product.Title,
		ProductImage:  product.Image,
		DeliveryType:  deliveryType,
		AddressText:   address,
		ScheduledDate: strings.TrimSpace(req.ScheduledDate),
		ScheduledTime: strings.TrimSpace(req.ScheduledTime),
		Note:          strings.TrimSpace(req.Note),
		Subtotal:      product.OfferPrice,
		DeliveryFee:   s.deliveryFee,
		Total:         product.OfferPrice.Add(s.deliveryFee),
		Status:        models.StatusPending,
	}
	if hasCoords {
		order.Latitude = req.Latitude
		order.Longitude = req.Longitude
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	return order, nil
}

// ListOrders returns the requester's orders: those they sell as a merchant,
// those they bought otherwise
func (s *OrderService) ListOrders(ctx context.Context, requester models.Identity, status string) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	filter := models.OrderFilter{}
	if status = strings.TrimSpace(status); status != "" {
		st := models.OrderStatus(strings.ToUpper(status))
		if !st.Valid() {
			return nil, fmt.Errorf("%w: invalid status %q", models.ErrValidation, status)
		}
		filter.Status = st
	}
	if requester.Role == models.RoleMerchant {
		filter.MerchantID = requester.UserID
	} else {
		filter.BuyerID = requester.UserID
	}

	return s.store.ListOrders(ctx, filter)
}

// GetOrder returns an order visible to its buyer or merchant
func (s *OrderService) GetOrder(ctx context.Context, requester models.Identity, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != requester.UserID && order.MerchantID != requester.UserID {
		return nil, fmt.Errorf("%w: not a participant of order %s", models.ErrForbidden, orderID)
	}
	return order, nil
}

// UpdateStatus moves an order along its lifecycle. Only the order's
// merchant may do so. Requesting the current status changes nothing.
func (s *OrderService) UpdateStatus(ctx context.Context, requester models.Identity, orderID, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	to := models.OrderStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !to.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", models.ErrValidation, status)
	}

	// one re-read if another request changed the order under us
	for attempt := 0; attempt < 2; attempt++ {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if order.MerchantID != requester.UserID {
			return nil, fmt.Errorf("%w: only the merchant can update order status", models.ErrForbidden)
		}
		if order.Status == to {
			return order, nil
		}
		if !models.CanTransition(order.Status, to) {
			return nil, fmt.Errorf("%w: cannot move order from %s to %s", models.ErrValidation, order.Status, to)
		}

		from := order.Status
		restocked, err := s.store.UpdateOrderStatus(ctx, order, to)
		if errors.Is(err, models.ErrConflict) {
			s.logger.Warn("Order changed concurrently, re-reading",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}

		order.Status = to
		order.UpdatedAt = time.Now()
		s.recordTransition(ctx, order, from, restocked)
		return order, nil
	}

	return nil, fmt.Errorf("%w: order %s was modified concurrently, retry", models.ErrValidation, orderID)
}

func (s *OrderService) recordTransition(ctx context.Context, order *models.Order, from models.OrderStatus, restocked bool) {
	util.OrderStatusTransitionsTotal.WithLabelValues(string(from), string(order.Status)).Inc()
	if restocked {
		util.InventoryRestockedTotal.Inc()
	}
	if order.Status == models.StatusCancelled && !restocked {
		s.logger.Warn("Cancelled order's product no longer exists, nothing to restock",
			zap.String("order_id", order.ID),
			zap.String("product_id", order.ProductID))
	}

	s.logger.Info("Order status updated",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)))

	event := &models.OrderStatusChangedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		MerchantID: order.MerchantID,
		ProductID:  order.ProductID,
		From:       from,
		To:         order.Status,
		Restocked:  restocked,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
