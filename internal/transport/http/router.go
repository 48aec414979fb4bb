package http

import (
	"net/http"
	"time"

	"neuroaid-diagnostic-service/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouteMetrics instruments requests and exposes a scrape endpoint.
type RouteMetrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type routerOptions struct {
	metrics RouteMetrics
}

type RouterOption func(*routerOptions)

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(m RouteMetrics) RouterOption {
	return func(o *routerOptions) { o.metrics = m }
}

// NewRouter wires health, REST and WebSocket endpoints.
func NewRouter(service *app.DiagnosticService, logger *zap.Logger, corsOrigins []string, opts ...RouterOption) http.Handler {
	var options routerOptions
	for _, opt := range opts {
		opt(&options)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:3000"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(logger))
	if options.metrics != nil {
		r.Use(options.metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if options.metrics != nil {
		r.Method(http.MethodGet, "/metrics", options.metrics.Handler())
	}
	r.Get("/ws", NewWSHandler(service, logger).ServeWS)
	r.Route("/api/sessions", NewSessionHandler(service, logger).Routes)
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(started)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
