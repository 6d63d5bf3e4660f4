package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leftuber-api/config"
	"leftuber-api/internal/api"
	"leftuber-api/internal/broker"
	"leftuber-api/internal/redisclient"
	"leftuber-api/internal/service"
	"leftuber-api/internal/session"
	"leftuber-api/internal/store"
	"leftuber-api/internal/util"
	"leftuber-api/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting leftuber api", zap.String("env", cfg.Server.Env))

	if cfg.Auth.OTPExposeInResponse {
		logger.Warn("OTP codes are returned in API responses; never enable this outside development")
	}

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	otpProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOTP)
	defer otpProducer.Close()
	logger.Info("Kafka producers initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(orderProducer, otpProducer)
	issuer := session.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	inventoryService := service.NewInventoryService(db)
	orderService := service.NewOrderService(db, eventPublisher, cfg.Business.DeliveryFee)
	authService := service.NewAuthService(db, db, redisClient, issuer, eventPublisher, service.AuthOptions{
		Cooldown:    cfg.Auth.OTPCooldown,
		MaxAttempts: cfg.Auth.OTPMaxAttempts,
		ExposeCode:  cfg.Auth.OTPExposeInResponse,
	})
	userService := service.NewUserService(db)
	dispatcher := service.NewOTPDispatcher(db, service.NewLogSender(!cfg.IsProduction()))
	janitor := service.NewOTPJanitor(db)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	otpConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOTP, cfg.Kafka.ConsumerGroup)
	otpWorker := worker.NewOTPDeliveryWorker(otpConsumer, dispatcher)
	go func() {
		if err := otpWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("OTP delivery worker error", zap.Error(err))
		}
	}()

	cleanupWorker := worker.NewCleanupWorker(janitor, cfg.Auth.OTPCleanupInterval)
	go func() {
		_ = cleanupWorker.Start(workerCtx)
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(inventoryService, orderService, authService, userService, issuer, logger, api.Options{
		Production:        cfg.IsProduction(),
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestTimeout:    cfg.Server.RequestTimeout,
		AuthRatePerMinute: cfg.Auth.AuthRatePerMinute,
		Readiness: map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		},
	})
	handler.SetupRoutes(router)
	go handler.CleanupLimiters(workerCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := otpWorker.Stop(); err != nil {
		logger.Warn("Error stopping OTP worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
