package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront-service/config"
	"storefront-service/internal/api"
	"storefront-service/internal/broker"
	"storefront-service/internal/live"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

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
	logger.Info("Starting storefront service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer(cfg.Observ.ServiceName, cfg.Observ.JaegerEndpoint)
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

	checks := map[string]api.Pinger{}

	var repo store.Repository
	switch cfg.Database.Driver {
	case config.StoreDriverMemory:
		mem := store.NewMemoryStore()
		seed, err := store.LoadSeed(nil)
		if err != nil {
			logger.Fatal("Failed to load seed", zap.Error(err))
		}
		if err := store.ApplySeed(context.Background(), mem, seed); err != nil {
			logger.Fatal("Failed to seed memory store", zap.Error(err))
		}
		repo = mem
		logger.Warn("Using in-memory store; data is lost on restart")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		repo = db
		checks["database"] = db
		logger.Info("Database connected")
	}

	var (
		guard   service.IdempotencyGuard
		cache   service.ResellerCache
		limiter service.LoginLimiter
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redisclient.Options{
			ClaimTTL:    cfg.Business.IdempotencyClaimTTL,
			ResellerTTL: cfg.Business.ResellerCacheTTL,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		guard, cache, limiter = redisClient, redisClient, redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected")
	} else {
		logger.Warn("REDIS_ADDR empty; idempotency claims, reseller cache and login throttling disabled")
	}

	var (
		sink   broker.Sink
		source worker.MessageSource
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		sink = producer
		source = broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		bus := broker.NewLocalBus(0)
		sink, source = bus, bus
		logger.Info("Kafka disabled; using in-process event bus")
	}
	eventPublisher := broker.NewEventPublisher(sink)

	access := service.NewAccessService(repo)
	if cfg.Auth.BootstrapUser != "" {
		if _, created, err := access.BootstrapDeveloper(context.Background(), cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword); err != nil {
			logger.Fatal("Failed to bootstrap developer account", zap.Error(err))
		} else if created {
			logger.Info("Developer account created", zap.String("username", cfg.Auth.BootstrapUser))
		}
	}

	resolver := service.NewResellerResolver(repo, cache)
	engine := service.NewReservationEngine()
	recorder := service.NewRecorder(repo, engine, eventPublisher)
	checkoutService := service.NewCheckoutService(repo, guard, resolver, engine, recorder, eventPublisher, service.CheckoutConfig{
		DefaultLocale: cfg.Business.DefaultLocale,
		StoreWhatsApp: cfg.Business.StoreWhatsApp,
		CountryCode:   cfg.Business.CountryCode,
	})
	authService := service.NewAuthService(repo, limiter, service.AuthConfig{
		Secret:      cfg.Auth.JWTSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		MaxAttempts: cfg.Auth.LoginMaxAttempts,
		Window:      cfg.Auth.LoginWindow,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var wg sync.WaitGroup

	hub := live.NewHub(cfg.Server.AllowedOrigins...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(workerCtx)
	}()

	notificationWorker := worker.NewNotificationWorker(source, repo, hub, worker.Config{
		DefaultLocale: cfg.Business.DefaultLocale,
		CountryCode:   cfg.Business.CountryCode,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := notificationWorker.Start(workerCtx); err != nil {
			logger.Error("Notification worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Checkout:  checkoutService,
		Catalog:   service.NewCatalogService(repo),
		Resellers: service.NewResellerService(repo, resolver),
		Recorder:  recorder,
		Access:    access,
		Auth:      authService,
		Settings:  service.NewSettingsService(repo),
		Live:      hub,
		Checks:    checks,
	})
	handler.SetupRoutes(router)

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
	if err := notificationWorker.Stop(); err != nil {
		logger.Error("Failed to stop notification worker", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Server exited")
}
