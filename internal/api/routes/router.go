package routes

import (
	"fmt"
	"net/http"

	"github.com/zatekoja/clinicqueue/internal/api/handlers"
	"github.com/zatekoja/clinicqueue/internal/api/middleware"
	"github.com/zatekoja/clinicqueue/internal/infrastructure/observability"
)

// Router holds the queue API route handlers
type Router struct {
	mux *http.ServeMux

	queueHandler        *handlers.QueueHandler
	availabilityHandler *handlers.AvailabilityHandler

	sseHandler       *handlers.SSEHandler
	websocketHandler *handlers.WebSocketHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. metrics may be nil.
func NewRouter(
	queueHandler *handlers.QueueHandler,
	availabilityHandler *handlers.AvailabilityHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:                 http.NewServeMux(),
		queueHandler:        queueHandler,
		availabilityHandler: availabilityHandler,
		allowedOrigins:      allowedOrigins,
		metrics:             metrics,
	}
}

// WithStreaming mounts the push endpoints on the API mux. It is used when
// events stay in this process and no separate stream server can see them.
func (r *Router) WithStreaming(sse *handlers.SSEHandler, ws *handlers.WebSocketHandler) *Router {
	r.sseHandler = sse
	r.websocketHandler = ws
	return r
}

// Streaming reports whether push endpoints are served by this router
func (r *Router) Streaming() bool {
	return r.sseHandler != nil && r.websocketHandler != nil
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", healthCheck)

	// Queue endpoints
	r.mux.HandleFunc("GET /api/queue", r.queueHandler.ListQueue)
	r.mux.HandleFunc("POST /api/queue", r.queueHandler.ReceivePatient)
	r.mux.HandleFunc("GET /api/queue/{id}", r.queueHandler.GetEntry)
	r.mux.HandleFunc("POST /api/queue/{id}/call", r.queueHandler.CallPatient)
	r.mux.HandleFunc("POST /api/queue/{id}/complete", r.queueHandler.CompleteConsultation)
	r.mux.HandleFunc("POST /api/queue/{id}/cancel", r.queueHandler.Cancel)
	r.mux.HandleFunc("POST /api/queue/{id}/prioritize", r.queueHandler.Prioritize)

	// Room endpoints
	r.mux.HandleFunc("POST /api/rooms/{roomId}/call-next", r.queueHandler.CallNext)
	r.mux.HandleFunc("GET /api/rooms/{roomId}/occupancy", r.queueHandler.RoomOccupancy)

	// Slot availability endpoints
	r.mux.HandleFunc("GET /api/availability", r.availabilityHandler.CheckAvailability)
	r.mux.HandleFunc("GET /api/availability/batch", r.availabilityHandler.CheckAvailabilityBatch)
	r.mux.HandleFunc("GET /api/availability/nearest", r.availabilityHandler.FindNearestAvailableSlot)

	if r.Streaming() {
		registerStreamRoutes(r.mux, r.sseHandler, r.websocketHandler)
	}

	return wrap(r.mux, r.allowedOrigins, r.metrics)
}

// NewStreamRouter serves the push endpoints of cmd/sse
func NewStreamRouter(sse *handlers.SSEHandler, ws *handlers.WebSocketHandler, allowedOrigins []string, metrics *observability.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthCheck)
	registerStreamRoutes(mux, sse, ws)
	return wrap(mux, allowedOrigins, metrics)
}

func registerStreamRoutes(mux *http.ServeMux, sse *handlers.SSEHandler, ws *handlers.WebSocketHandler) {
	mux.HandleFunc("GET /api/stream/rooms/{roomId}", sse.StreamRoom)
	mux.HandleFunc("GET /api/stream/receptionist", sse.StreamReceptionist)
	mux.HandleFunc("GET /api/ws", ws.Connect)

	mux.HandleFunc("GET /api/stream/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"sse_clients": %d, "websocket_clients": %d}`, sse.ClientCount(), ws.ClientCount())
	})
}

// wrap applies middleware; CORS is outermost so preflights never reach handlers
func wrap(mux *http.ServeMux, allowedOrigins []string, metrics *observability.Metrics) http.Handler {
	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(metrics, mux)(handler)
	handler = middleware.CORSMiddleware(allowedOrigins)(handler)
	return handler
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
