package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. Order events and OTP
// events go to separate topics.
type EventPublisher struct {
	orders *Producer
	otp    *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, otp *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, otp: otp}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOTPRequested publishes OTPRequested event
func (ep *EventPublisher) PublishOTPRequested(ctx context.Context, event *models.OTPRequestedEvent) error {
	return ep.otp.PublishEvent(ctx, fmt.Sprintf("phone-%s", event.Phone), event)
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOTPRequested func(context.Context, *models.OTPRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOTPRequested registers a handler for OTPRequested events
func (eh *EventHandler) OnOTPRequested(handler func(context.Context, *models.OTPRequestedEvent) error) {
	eh.onOTPRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOTPRequested:
		if eh.onOTPRequested != nil {
			var event models.OTPRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OTPRequested event: %w", err)
			}
			return eh.onOTPRequested(ctx, &event)
		}

	default:
		logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
