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

	"earnings-service/config"
	"earnings-service/internal/api"
	"earnings-service/internal/broker"
	"earnings-service/internal/imagestore"
	"earnings-service/internal/pricing"
	"earnings-service/internal/redisclient"
	"earnings-service/internal/service"
	"earnings-service/internal/store"
	"earnings-service/internal/tiers"
	"earnings-service/internal/util"
	"earnings-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting earnings service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceRatio)
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

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEarnings)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	table, err := pricing.LoadTable(cfg.Business.PricingTablePath)
	if err != nil {
		logger.Fatal("Failed to load pricing table", zap.Error(err))
	}
	calculator, err := pricing.NewCalculator(table)
	if err != nil {
		logger.Fatal("Invalid pricing table", zap.Error(err))
	}

	tierCache := tiers.NewCache(db, cfg.Business.TierCacheTTL)
	if _, err := tierCache.Resolver(context.Background()); err != nil {
		// sales are refused until the tier table is fixed
		logger.Error("Commission tier table unusable", zap.Error(err))
	}

	var images service.ImageFetcher
	httpFetcher := imagestore.NewHTTPFetcher(cfg.Images.FetchTimeout, cfg.Images.MaxBytes)
	images = httpFetcher
	if cfg.Images.CloudinaryURL != "" {
		cld, err := imagestore.NewCloudinaryFetcher(cfg.Images.CloudinaryURL, httpFetcher)
		if err != nil {
			logger.Fatal("Failed to configure Cloudinary", zap.Error(err))
		}
		images = cld
		logger.Info("Cloudinary image references enabled")
	}

	retryPolicy := service.RetryPolicy{
		Attempts: cfg.Business.StoreRetryAttempts,
		Initial:  cfg.Business.StoreRetryInitial,
		Max:      cfg.Business.StoreRetryMax,
	}

	duplicateGate := service.NewDuplicateGate(db, images, eventPublisher, service.DuplicateGateConfig{
		Threshold: cfg.Business.DuplicateThreshold,
		FailOpen:  cfg.Business.DuplicateFailOpen,
		Retry:     retryPolicy,
	})
	listingService := service.NewListingService(db, calculator, retryPolicy)
	ledgerService := service.NewLedgerService(db, tierCache, redisClient, eventPublisher, service.LedgerConfig{
		Retry:          retryPolicy,
		IdempotencyTTL: cfg.Business.IdempotencyTTL,
	})
	payoutService := service.NewPayoutService(db, redisClient, eventPublisher, service.PayoutConfig{
		MinAmount:   cfg.Business.PayoutMinAmount,
		Concurrency: cfg.Business.PayoutConcurrency,
		Retry:       retryPolicy,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrders, cfg.Kafka.ConsumerGroup)
	saleWorker := worker.NewSaleWorker(orderConsumer, ledgerService, db)
	go func() {
		if err := saleWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Sale worker error", zap.Error(err))
		}
	}()

	scheduler := worker.NewPayoutScheduler(payoutService, cfg.Business.PayoutInterval)
	go func() {
		if err := scheduler.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Payout scheduler error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Dependencies{
		Designs:  duplicateGate,
		Listings: listingService,
		Ledger:   ledgerService,
		Payouts:  payoutService,
		Tiers:    tierCache,
		Limiter:  api.NewRateLimiter(cfg.Server.SubmitRateLimit, cfg.Server.SubmitRateBurst),
		Readiness: map[string]api.ReadinessCheck{
			"database": db.Ping,
			"redis":    redisClient.Ping,
		},
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	var metricsSrv *http.Server
	if port := cfg.Observ.PrometheusPort; port != "" && port != cfg.Server.Port {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%s", port), Handler: mux}
		go func() {
			logger.Info("Serving metrics", zap.String("port", port))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	workerCancel()
	if err := saleWorker.Stop(); err != nil {
		logger.Error("Error stopping sale worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
