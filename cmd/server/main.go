package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/cx-tal-miterani/rail-booking-system/internal/config"
	"github.com/cx-tal-miterani/rail-booking-system/internal/database"
	"github.com/cx-tal-miterani/rail-booking-system/internal/fare"
	"github.com/cx-tal-miterani/rail-booking-system/internal/handlers"
	"github.com/cx-tal-miterani/rail-booking-system/internal/logger"
	"github.com/cx-tal-miterani/rail-booking-system/internal/payment"
	"github.com/cx-tal-miterani/rail-booking-system/internal/railapi"
	"github.com/cx-tal-miterani/rail-booking-system/internal/router"
	"github.com/cx-tal-miterani/rail-booking-system/internal/service"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/cx-tal-miterani/rail-booking-system/internal/ticket"
	"github.com/cx-tal-miterani/rail-booking-system/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)
	ctx := context.Background()

	// Session store
	var redisClient *redis.Client
	if cfg.SessionBackend == config.SessionBackendRedis {
		var err error
		redisClient, err = session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
	}
	store, closeStore := openStore(ctx, cfg, redisClient, log)
	defer closeStore()

	// Booking service client
	rail := railapi.NewClient(cfg.BookingAPIURL, cfg.BookingAPITimeout, log)

	// Progress push
	hub := websocket.NewHub(log)
	go hub.Run()

	registry := booking.NewRegistry(store, rail, payment.NewSimulator(cfg.PaymentDelay, log), log,
		booking.WithObserver(hub.Observer()))
	registry.SetIdleTimeout(cfg.WorkflowIdleTimeout)

	// Payment engine
	var engine service.PaymentEngine = service.InProcessEngine{}
	if cfg.BookingEngine == config.EngineTemporal {
		temporalClient, err := client.Dial(client.Options{
			HostPort: cfg.TemporalHost,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create Temporal client")
		}
		defer temporalClient.Close()
		if cfg.SessionBackend == config.SessionBackendMemory {
			log.Warn("Temporal engine with the memory session store: the worker cannot read drafts")
		}
		engine = service.NewTemporalEngine(temporalClient, cfg.PaymentDelay, cfg.WorkflowIdleTimeout)
	}

	// Initialize services
	bookingService := service.NewBookingService(service.Deps{
		Resolver:  fare.NewResolver(cfg.HandoffSecret),
		Registry:  registry,
		Rail:      rail,
		Query:     ticket.NewQuery(rail, log),
		Canceller: ticket.NewCanceller(rail, log),
		Engine:    engine,
		Logger:    log,
	})

	rateLimiter, err := router.NewRateLimiter(cfg.RateLimit, redisClient)
	if err != nil {
		log.WithError(err).Fatal("Failed to create rate limiter")
	}

	// Initialize handlers
	h := handlers.NewHandler(bookingService, hub, log)

	// Create router
	r := router.SetupRouter(h, rateLimiter)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"engine":  cfg.BookingEngine,
			"session": cfg.SessionBackend,
			"api":     cfg.BookingAPIURL,
		}).Info("API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	hub.Stop()

	log.Info("Server stopped")
}

// openStore picks the draft store for the configured backend
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log *logrus.Logger) (session.Store, func()) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		return session.NewRedisStore(redisClient), func() {}

	case config.SessionBackendPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		repo := database.NewDraftRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("Failed to prepare database schema")
		}
		return repo, pool.Close

	default:
		return session.NewMemoryStore(), func() {}
	}
}
