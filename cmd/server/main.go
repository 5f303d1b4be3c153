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

	"pos-ledger/config"
	"pos-ledger/internal/api"
	"pos-ledger/internal/auth"
	"pos-ledger/internal/broker"
	"pos-ledger/internal/redisclient"
	"pos-ledger/internal/service"
	"pos-ledger/internal/store"
	"pos-ledger/internal/store/memstore"
	"pos-ledger/internal/util"
	"pos-ledger/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS ledger service", zap.String("env", cfg.Server.Env))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	location, _ := cfg.Business.Location()

	var backend store.Backend
	switch cfg.Database.Store {
	case config.StoreMemory:
		backend = memstore.New()
		logger.Warn("Using in-memory store, ledger state is lost on restart")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		backend = db
		logger.Info("Database connected")
	}
	defer backend.Close()

	readiness := map[string]api.Pinger{"store": backend}

	var idem service.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		idem = redisClient
		readiness["redis"] = redisClient
		logger.Info("Redis connected")
	} else {
		logger.Info("REDIS_ADDR not set, idempotency keys are ignored")
	}

	var publisher service.EventPublisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicLedger))
	}

	invoices, err := service.NewSnowflakeInvoices(cfg.Business.SnowflakeNode)
	if err != nil {
		logger.Fatal("Failed to initialize invoice numbering", zap.Error(err))
	}

	opts := []service.Option{service.WithLocation(location)}
	salesLedger := service.NewSalesLedger(backend, publisher, opts...)
	services := api.Services{
		Catalog: service.NewCatalog(backend, publisher, service.CatalogConfig{
			CodeAttempts: cfg.Business.CodeGenAttempts,
			SearchLimit:  cfg.Business.SearchLimit,
		}, opts...),
		Sales:     salesLedger,
		Credits:   service.NewCreditLedger(backend, salesLedger, publisher, invoices, idem, cfg.Redis.IdempotencyTTL, opts...),
		Checkout:  service.NewCheckout(backend, salesLedger, publisher, invoices, idem, cfg.Redis.IdempotencyTTL, opts...),
		Dashboard: service.NewDashboard(backend, cfg.Business.LowStockThreshold, opts...),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var alertWorker *worker.StockAlertWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger, cfg.Kafka.ConsumerGroup)
		alertWorker = worker.NewStockAlertWorker(consumer, cfg.Business.LowStockThreshold, util.ComponentLogger("stock-alert-worker"))
		go func() {
			if err := alertWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Stock alert worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := api.NewCallerRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer limiter.Stop()

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := api.NewHandler(services, tokens, limiter, readiness, util.ComponentLogger("api"))
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
	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			logger.Warn("Error stopping stock alert worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
