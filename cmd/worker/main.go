package main

import (
	"context"

	"github.com/cx-tal-miterani/rail-booking-system/internal/activities"
	"github.com/cx-tal-miterani/rail-booking-system/internal/config"
	"github.com/cx-tal-miterani/rail-booking-system/internal/database"
	"github.com/cx-tal-miterani/rail-booking-system/internal/logger"
	"github.com/cx-tal-miterani/rail-booking-system/internal/railapi"
	"github.com/cx-tal-miterani/rail-booking-system/internal/service"
	"github.com/cx-tal-miterani/rail-booking-system/internal/session"
	"github.com/cx-tal-miterani/rail-booking-system/internal/workflows"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	// The worker shares the API server's draft store
	var store session.Store
	switch cfg.SessionBackend {
	case config.SessionBackendPostgres:
		log.Info("Connecting to database...")
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to database")
		}
		defer pool.Close()
		repo := database.NewDraftRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.WithError(err).Fatal("Failed to prepare database schema")
		}
		store = repo

	case config.SessionBackendRedis:
		log.Info("Connecting to Redis...")
		redisClient, err := session.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		store = session.NewRedisStore(redisClient)

	default:
		log.WithField("backend", cfg.SessionBackend).Fatal("Worker needs a shared session store (redis or postgres)")
	}

	// Connect to Temporal
	log.WithField("host", cfg.TemporalHost).Info("Connecting to Temporal...")
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Temporal")
	}
	defer c.Close()

	// Create worker
	w := worker.New(c, service.TaskQueue, worker.Options{})

	// Register workflows
	w.RegisterWorkflow(workflows.BookingWorkflow)

	// Create and register activities
	rail := railapi.NewClient(cfg.BookingAPIURL, cfg.BookingAPITimeout, log)
	w.RegisterActivity(activities.NewActivities(store, rail))

	// Start worker
	log.Info("Starting Temporal worker...")
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.WithError(err).Fatal("Worker failed")
	}
}
