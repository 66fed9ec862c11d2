package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yourusername/pointledger/pkg/pointledger"
)

// RouterConfig wires the HTTP API
type RouterConfig struct {
	Registry *pointledger.Registry
	Metrics  MetricsProvider // Optional: enables /metrics endpoints
	Logger   *slog.Logger    // Optional: defaults to slog.Default()

	// Charge wraps the ledger routes, e.g. a budget middleware
	Charge func(http.Handler) http.Handler
}

// NewRouter returns the chi router serving the ledger API
func NewRouter(config RouterConfig) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(config.Registry, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	if config.Metrics != nil {
		mh := NewMetricsHandler(config.Metrics)
		r.Method(http.MethodGet, "/metrics", mh)
		r.Get("/metrics/prometheus", mh.Prometheus)
	}

	r.Group(func(api chi.Router) {
		if config.Charge != nil {
			api.Use(config.Charge)
		}

		api.Get("/ledgers", h.ListLedgers)
		api.Route("/ledgers/{name}", func(lr chi.Router) {
			lr.Post("/entries", h.Create)
			lr.Get("/entries", h.Pairs)
			lr.Get("/entries/{key}", h.Get)
			lr.Delete("/entries/{key}", h.Delete)
			lr.Post("/entries/{key}/add", h.Add)
			lr.Get("/entries/{key}/reasons", h.Reasons)
			lr.Get("/out-of-range", h.OutOfRange)
			lr.Post("/reap", h.Reap)
		})
		api.Post("/wsum", h.WSum)
	})

	return r
}

// requestLogger logs one line per request through slog
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.DebugContext(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
