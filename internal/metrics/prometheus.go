// Package metrics provides Prometheus metrics for the bracket service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric of the service on its own registry.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Generation
	generationRuns     *prometheus.CounterVec
	generationDuration prometheus.Histogram
	categoriesBuilt    prometheus.Counter
	categoriesFailed   prometheus.Counter

	// Progression
	matchUpdates  *prometheus.CounterVec
	cascadeVoided prometheus.Counter

	standingsExports *prometheus.CounterVec
	liveConnections  prometheus.Gauge

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dojo",
		subsystem:        "brackets",
		histogramBuckets: prometheus.DefBuckets,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.generationRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "generation_runs_total",
		Help:      "Bracket generation runs by terminal outcome",
	}, []string{"outcome"})

	m.generationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "generation_duration_seconds",
		Help:      "Wall time of a full generation run",
		Buckets:   m.histogramBuckets,
	})

	m.categoriesBuilt = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "categories_built_total",
		Help:      "Category brackets built and persisted",
	})

	m.categoriesFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "categories_failed_total",
		Help:      "Category brackets that could not be built",
	})

	m.matchUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "match_updates_total",
		Help:      "Match mutations by operation",
	}, []string{"operation"})

	m.cascadeVoided = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cascade_voided_matches_total",
		Help:      "Downstream matches reset by result overrides",
	})

	m.standingsExports = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "standings_exports_total",
		Help:      "Standings uploads to object storage by outcome",
	}, []string{"outcome"})

	m.liveConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "live_connections",
		Help:      "Open websocket connections",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) RecordGeneration(outcome string, d time.Duration) {
	m.generationRuns.WithLabelValues(outcome).Inc()
	m.generationDuration.Observe(d.Seconds())
}

func (m *Manager) RecordCategoryBuilt() {
	m.categoriesBuilt.Inc()
}

func (m *Manager) RecordCategoryFailed() {
	m.categoriesFailed.Inc()
}

func (m *Manager) RecordMatchUpdate(operation string) {
	m.matchUpdates.WithLabelValues(operation).Inc()
}

func (m *Manager) RecordCascadeVoided(n int) {
	if n > 0 {
		m.cascadeVoided.Add(float64(n))
	}
}

func (m *Manager) RecordStandingsExport(outcome string) {
	m.standingsExports.WithLabelValues(outcome).Inc()
}

func (m *Manager) LiveConnectionOpened() {
	m.liveConnections.Inc()
}

func (m *Manager) LiveConnectionClosed() {
	m.liveConnections.Dec()
}

// Middleware records every request under its chi route pattern so IDs in paths do not explode
// label cardinality.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
