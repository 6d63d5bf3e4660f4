package service

import (
	"context"
	"fmt"
	"time"

	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"go.uber.org/zap"
)

// Sender delivers a text message to a phone
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// LogSender writes messages to the log instead of a carrier. The message
// body carries the code, so it is logged at debug level and only when
// revealBody is set.
type LogSender struct {
	logger     *zap.Logger
	revealBody bool
}

// NewLogSender creates a sender that only logs
func NewLogSender(revealBody bool) *LogSender {
	return &LogSender{logger: util.GetLogger(), revealBody: revealBody}
}

// Send implements Sender
func (ls *LogSender) Send(_ context.Context, phone, message string) error {
	ls.logger.Info("SMS sent", zap.String("phone", phone), zap.Int("length", len(message)))
	if ls.revealBody {
		ls.logger.Debug("SMS body", zap.String("phone", phone), zap.String("message", message))
	}
	return nil
}

// OTPDispatcher turns OTP_REQUESTED events into messages. Each event is
// delivered at most once per successful run; redeliveries are skipped.
type OTPDispatcher struct {
	events EventStore
	sender Sender
	now    func() time.Time
	logger *zap.Logger
}

// NewOTPDispatcher creates a new dispatcher
func NewOTPDispatcher(events EventStore, sender Sender) *OTPDispatcher {
	return &OTPDispatcher{
		events: events,
		sender: sender,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// HandleOTPRequested handles an OTP_REQUESTED event
func (d *OTPDispatcher) HandleOTPRequested(ctx context.Context, event *models.OTPRequestedEvent) error {
	ctx, span := util.StartSpan(ctx, "OTPDispatcher.HandleOTPRequested")
	defer span.End()

	processed, err := d.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		d.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if !event.ExpiresAt.After(d.now()) {
		d.logger.Warn("Dropping expired otp", zap.String("event_id", event.EventID), zap.String("phone", event.Phone))
		util.OTPDeliveredTotal.WithLabelValues("expired").Inc()
		return d.events.MarkEventProcessed(ctx, event.EventID, event.EventType)
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		event.Code, int(models.OTPValidity.Minutes()))
	if err := d.sender.Send(ctx, event.Phone, message); err != nil {
		util.OTPDeliveredTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to send otp: %w", err)
	}
	util.OTPDeliveredTotal.WithLabelValues("sent").Inc()

	if err := d.events.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// OTPJanitor purges used and expired codes
type OTPJanitor struct {
	store  OTPStore
	now    func() time.Time
	logger *zap.Logger
}

// NewOTPJanitor creates a new janitor
func NewOTPJanitor(store OTPStore) *OTPJanitor {
	return &OTPJanitor{store: store, now: time.Now, logger: util.GetLogger()}
}

// Sweep deletes used codes and codes that expired before now
func (j *OTPJanitor) Sweep(ctx context.Context) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OTPJanitor.Sweep")
	defer span.End()

	n, err := j.store.DeleteStaleOTPs(ctx, j.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale otps: %w", err)
	}
	if n > 0 {
		j.logger.Info("Purged stale otp codes", zap.Int64("count", n))
	}
	return n, nil
}
