package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"applicant-registry/internal/common/logger"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// NewRouter mounts the lookup API, probes and the metrics endpoint.
// metrics may be nil.
func NewRouter(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	if !h.opts.ProbesOnly {
		h.Register(r)
	}
	return r
}

// requestID tags every request with a correlation id, reusing the caller's
// X-Request-ID when it is a valid UUID.
func requestID(base logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			log := base.WithFields(map[string]interface{}{
				"requestId": id,
				"method":    r.Method,
				"path":      r.URL.Path,
			})
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			ctx = logger.ContextWithLogger(ctx, log)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))
			log.Debug("request served", map[string]interface{}{
				"status":     ww.Status(),
				"durationMs": time.Since(start).Milliseconds(),
			})
		})
	}
}

// RequestID returns the correlation id assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
