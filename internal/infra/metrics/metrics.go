package metrics

import (
	"net/http"
	"strconv"
	"time"

	"neuroaid-diagnostic-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Finalize outcomes.
const (
	OutcomeScored = "scored"
	OutcomeCached = "cached"
	OutcomeFailed = "failed"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	sessionsStarted *prometheus.CounterVec
	answers         *prometheus.CounterVec
	finalizations   *prometheus.CounterVec
	scoringDuration prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diagnostic_sessions_started_total",
			Help: "Quiz sessions started by catalog",
		}, []string{"catalog"}),
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diagnostic_answers_total",
			Help: "Answers recorded by the phase they were given in",
		}, []string{"phase"}),
		finalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diagnostic_finalizations_total",
			Help: "Finalize calls by outcome",
		}, []string{"outcome"}),
		scoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "diagnostic_scoring_duration_seconds",
			Help:    "Round trip to the scoring service",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diagnostic_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diagnostic_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) SessionStarted(catalogID string) {
	m.sessionsStarted.WithLabelValues(catalogID).Inc()
}

func (m *Metrics) AnswerRecorded(phase domain.Phase) {
	m.answers.WithLabelValues(string(phase)).Inc()
}

// Finalized records a finalize outcome. took is only observed for calls that reached the scorer.
func (m *Metrics) Finalized(outcome string, took time.Duration) {
	m.finalizations.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCached {
		m.scoringDuration.Observe(took.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests by their chi route pattern so session ids do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	})
}
