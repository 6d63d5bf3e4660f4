package worker

import (
	"context"
	"time"

	"leftuber-api/internal/broker"
	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"go.uber.org/zap"
)

// OTPHandler handles OTP_REQUESTED events
type OTPHandler interface {
	HandleOTPRequested(ctx context.Context, event *models.OTPRequestedEvent) error
}

// OTPDeliveryWorker consumes OTP events and delivers the codes
type OTPDeliveryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOTPDeliveryWorker creates a new OTP delivery worker
func NewOTPDeliveryWorker(consumer *broker.Consumer, handler OTPHandler) *OTPDeliveryWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOTPRequested(handler.HandleOTPRequested)

	return &OTPDeliveryWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *OTPDeliveryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting OTP delivery worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OTPDeliveryWorker) Stop() error {
	w.logger.Info("Stopping OTP delivery worker")
	return w.consumer.Close()
}

// Sweeper removes stale rows
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// CleanupWorker runs a Sweeper on a fixed interval
type CleanupWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// DefaultCleanupInterval replaces a non-positive sweep interval
const DefaultCleanupInterval = 10 * time.Minute

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(sweeper Sweeper, interval time.Duration) *CleanupWorker {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start sweeps once immediately and then every interval until ctx is done
func (w *CleanupWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cleanup worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Cleanup sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
