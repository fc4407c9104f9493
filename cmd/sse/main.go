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
	"github.com/zatekoja/clinicqueue/internal/adapters/events"
	"github.com/zatekoja/clinicqueue/internal/api/handlers"
	"github.com/zatekoja/clinicqueue/internal/api/routes"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/clients/redis"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
	"github.com/zatekoja/clinicqueue/internal/realtime"
	"github.com/zatekoja/clinicqueue/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-stream", cfg.Log.Env, cfg.Log.Level)
	log.Info().Msg("Starting stream server...")

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Redis carries events from the API process; without it only this
	// process's own publishers are visible.
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)

	hub := realtime.NewHub(eventBus, metrics)
	sseHandler := handlers.NewSSEHandler(eventBus, cfg.Realtime.HeartbeatInterval, metrics)
	wsHandler := handlers.NewWebSocketHandler(hub, cfg.Server.AllowedOrigins, cfg.Realtime.HeartbeatInterval, cfg.Realtime.ClientBuffer)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.StreamPort)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      routes.NewStreamRouter(sseHandler, wsHandler, cfg.Server.AllowedOrigins, metrics),
		ReadTimeout:  30 * time.Second,  // Longer timeout for SSE
		WriteTimeout: 0,                 // No timeout for SSE streaming
		IdleTimeout:  120 * time.Second, // Allow long-lived connections
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Stream server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Stream server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Stream server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Closing the hub ends WebSocket write pumps; SSE handlers end with their request context.
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event bus")
	}

	log.Info().Msg("Stream server stopped")
}
