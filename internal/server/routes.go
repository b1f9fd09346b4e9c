package server

import (
	"context"
	"net/http"

	"github.com/batchline/batchline/internal/manager"
)

// ItemHandler processes one item submitted over the API. Items arrive as
// strings (URLs, object keys, record ids); callers with richer item types
// submit through the library surface instead.
type ItemHandler func(ctx context.Context, item string) error

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(mgr *manager.Manager, handlers map[string]ItemHandler) http.Handler {
	h := &handler{
		mgr:      mgr,
		handlers: handlers,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/v1/processors", h.listProcessors)
	mux.HandleFunc("POST /api/v1/jobs", h.submitJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.getJobStatus)
	mux.HandleFunc("GET /api/v1/jobs/{id}/result", h.getJobResult)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", h.cancelJob)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
