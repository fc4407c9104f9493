package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/clinicqueue/internal/adapters/cache"
	"github.com/zatekoja/clinicqueue/internal/adapters/database"
	"github.com/zatekoja/clinicqueue/internal/adapters/events"
	"github.com/zatekoja/clinicqueue/internal/adapters/memory"
	"github.com/zatekoja/clinicqueue/internal/api/handlers"
	"github.com/zatekoja/clinicqueue/internal/api/routes"
	"github.com/zatekoja/clinicqueue/internal/application/services"
	"github.com/zatekoja/clinicqueue/internal/domain/entities"
	"github.com/zatekoja/clinicqueue/internal/domain/providers"
	"github.com/zatekoja/clinicqueue/internal/domain/repositories"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/clients/redis"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	"github.com/zatekoja/clinicqueue/internal/realtime"
	"github.com/zatekoja/clinicqueue/migrations"
	"github.com/zatekoja/clinicqueue/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Env, cfg.Log.Level)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize storage
	var (
		queueRepo       repositories.QueueRepository
		appointmentRepo repositories.AppointmentRepository
	)
	switch cfg.Queue.Store {
	case "memory":
		log.Warn().Msg("Using in-memory queue store; state is lost on restart")
		queueRepo = memory.NewQueueStore()
		appointmentRepo = memory.NewAppointmentStore()
	default:
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()

		if err := pgClient.Migrate(ctx, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply database migrations")
		}

		queueRepo = database.NewQueueAdapter(pgClient, metrics)
		appointmentRepo = database.NewAppointmentAdapter(pgClient, metrics)
	}

	// Initialize Redis (optional - for listing cache and event fan-out)
	var eventBus providers.EventBus
	listRepo := queueRepo
	inProcessEvents := false
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis client; serving push endpoints from this process")
		eventBus = events.NewMemoryEventBus()
		inProcessEvents = true
		if cfg.Queue.Store != "memory" {
			listRepo = database.NewCachedQueueAdapter(queueRepo, cache.NewMemoryAdapter(), cfg.Queue.ListCacheTTL, metrics)
		}
	} else {
		defer redisClient.Close()
		eventBus = events.NewRedisEventBus(redisClient)
		listRepo = database.NewCachedQueueAdapter(queueRepo, cache.NewRedisAdapter(redisClient), cfg.Queue.ListCacheTTL, metrics)
	}
	defer eventBus.Close()

	// Initialize services
	notifier := services.NewQueueNotifier(eventBus, metrics)
	guard := services.NewOccupancyGuard(queueRepo)
	queueService := services.NewQueueService(listRepo, guard, notifier, metrics, services.QueueServiceConfig{
		AllowCancelInConsultation: cfg.Queue.AllowCancelInConsultation,
	})

	schedule, err := entities.NewSlotSchedule(cfg.Queue.DayStart, cfg.Queue.DayEnd, cfg.Queue.SlotInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid slot schedule")
	}
	capacityLedger := services.NewCapacityLedger(appointmentRepo, services.CapacityLedgerConfig{
		SlotCapacity: cfg.Queue.SlotCapacity,
		Schedule:     schedule,
	}, metrics)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(queueService)
	availabilityHandler := handlers.NewAvailabilityHandler(capacityLedger)

	router := routes.NewRouter(queueHandler, availabilityHandler, cfg.Server.AllowedOrigins, metrics)

	// Without Redis the stream server cannot see this process's events, so
	// the push endpoints are served here over the in-process bus.
	var hub *realtime.Hub
	writeTimeout := 15 * time.Second
	if inProcessEvents {
		hub = realtime.NewHub(eventBus, metrics)
		router.WithStreaming(
			handlers.NewSSEHandler(eventBus, cfg.Realtime.HeartbeatInterval, metrics),
			handlers.NewWebSocketHandler(hub, cfg.Server.AllowedOrigins, cfg.Realtime.HeartbeatInterval, cfg.Realtime.ClientBuffer),
		)
		writeTimeout = 0 // No timeout for SSE streaming
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Str("store", cfg.Queue.Store).Bool("streaming", router.Streaming()).Msg("Queue API starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if hub != nil {
		hub.Close()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
