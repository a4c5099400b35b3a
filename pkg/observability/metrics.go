package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server-level Prometheus metrics. Ingestion keeps its
// own counters next to the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthzDecisionsTotal *prometheus.CounterVec
	APIKeyVerifications *prometheus.CounterVec

	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates a registry with the server metrics plus the standard
// Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traceloft_http_requests_total",
			Help: "Total HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "traceloft_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuthzDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traceloft_authz_decisions_total",
			Help: "Authorization outcomes by decision.",
		}, []string{"resource", "action", "decision"}),
		APIKeyVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "traceloft_api_key_verifications_total",
			Help: "API key verification outcomes.",
		}, []string{"outcome"}),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traceloft_db_connections_active",
			Help: "Open database connections.",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "traceloft_db_connections_idle",
			Help: "Idle database connections.",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.APIKeyVerifications,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry so other packages can register
// their own collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one finished HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthzDecision records one authorization outcome.
func (m *Metrics) RecordAuthzDecision(resource, action string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.AuthzDecisionsTotal.WithLabelValues(resource, action, decision).Inc()
}

// RecordKeyVerification records one API key verification outcome.
func (m *Metrics) RecordKeyVerification(outcome string) {
	m.APIKeyVerifications.WithLabelValues(outcome).Inc()
}

// DBStats mirrors the pool counters the gauges track.
type DBStats struct {
	OpenConnections int
	Idle            int
}

// UpdateDBStats refreshes the connection pool gauges.
func (m *Metrics) UpdateDBStats(stats DBStats) {
	m.DBConnectionsActive.Set(float64(stats.OpenConnections))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}
