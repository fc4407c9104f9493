package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// InitLogger configures the global zerolog logger. env "development" gets
// human readable console output, "test" discards everything, anything else
// writes JSON lines with timestamps and callers.
func InitLogger(serviceName, env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch env {
	case "development":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", serviceName).Logger()
	case "test":
		log.Logger = zerolog.New(io.Discard)
	default:
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Caller().Str("service", serviceName).Logger()
	}
}

// WithRequestLogger stores a logger carrying requestID in ctx
func WithRequestLogger(ctx context.Context, requestID string) context.Context {
	logger := log.With().Str("request_id", requestID).Logger()
	return logger.WithContext(ctx)
}

// LoggerFromContext returns the request logger stored in ctx, or the global
// logger, annotated with the active trace and span ids.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := log.Logger
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		logger = logger.With().
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String()).
			Logger()
	}

	return &logger
}
