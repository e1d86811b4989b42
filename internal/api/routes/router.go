package routes

import (
	"fmt"
	"net/http"

	"github.com/medserve/discovery/internal/api/handlers"
	"github.com/medserve/discovery/internal/api/middleware"
	"github.com/medserve/discovery/internal/infrastructure/observability"
)

// Router wires the rating-stream endpoints and shared middleware.
type Router struct {
	mux        *http.ServeMux
	sseHandler *handlers.SSEHandler
	metrics    *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(sseHandler *handlers.SSEHandler, metrics *observability.Metrics) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		sseHandler: sseHandler,
		metrics:    metrics,
	}
	r.register()
	return r
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.mux.HandleFunc("GET /api/stream/ratings", r.sseHandler.StreamAllRatings)
	r.mux.HandleFunc("GET /api/stream/services/{id}", r.sseHandler.StreamServiceRatings)

	r.mux.HandleFunc("GET /api/stream/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"connected_clients": %d}`, r.sseHandler.GetClientCount())
	})
}

// Handler returns the router wrapped in shared middleware.
func (r *Router) Handler() http.Handler {
	var handler http.Handler = r.mux
	if r.metrics != nil {
		handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	}
	handler = middleware.CORSMiddleware(handler)
	handler = middleware.LoggingMiddleware(handler)
	return handler
}
