package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for walink
type Metrics struct {
	// Click counters
	ClicksTotal          *prometheus.CounterVec
	SelectionErrorsTotal *prometheus.CounterVec
	ClickEventsPurged    prometheus.Counter

	// Event publishing
	EventsPublishedTotal *prometheus.CounterVec

	// Inventory gauges
	Groups      *prometheus.GaugeVec
	Agents      *prometheus.GaugeVec
	ClickEvents prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ClicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walink_clicks_total",
				Help: "Total number of clicks routed to an agent",
			},
			[]string{"group", "strategy"},
		),
		SelectionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walink_selection_errors_total",
				Help: "Total number of clicks that could not be routed",
			},
			[]string{"reason"},
		),
		ClickEventsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "walink_click_events_purged_total",
				Help: "Total number of click events removed by retention",
			},
		),

		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walink_events_published_total",
				Help: "Total number of click events published to the broker",
			},
			[]string{"result"},
		),

		Groups: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "walink_groups",
				Help: "Number of groups by status",
			},
			[]string{"state"},
		),
		Agents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "walink_agents",
				Help: "Number of agents by status",
			},
			[]string{"state"},
		),
		ClickEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "walink_click_events_stored",
				Help: "Number of click events kept for analytics",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walink_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "walink_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walink_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walink_ratelimit_exceeded_total",
				Help: "Total number of clicks rejected by rate limiting",
			},
			[]string{"level"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "walink_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "walink_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "walink_storage_used_bytes",
				Help: "SQLite database file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.ClicksTotal,
		m.SelectionErrorsTotal,
		m.ClickEventsPurged,
		m.EventsPublishedTotal,
		m.Groups,
		m.Agents,
		m.ClickEvents,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// persistedCounters maps the counter vectors restored across restarts
func (m *Metrics) persistedCounters() map[string]*prometheus.CounterVec {
	return map[string]*prometheus.CounterVec{
		"walink_clicks_total":             m.ClicksTotal,
		"walink_selection_errors_total":   m.SelectionErrorsTotal,
		"walink_events_published_total":   m.EventsPublishedTotal,
		"walink_api_requests_total":       m.APIRequestsTotal,
		"walink_api_errors_total":         m.APIErrorsTotal,
		"walink_ratelimit_exceeded_total": m.RateLimitExceededTotal,
	}
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncClicks increments the routed click counter
func IncClicks(group, strategy string) {
	m := Global()
	if m != nil {
		m.ClicksTotal.WithLabelValues(group, strategy).Inc()
	}
}

// IncSelectionErrors increments the failed selection counter
func IncSelectionErrors(reason string) {
	m := Global()
	if m != nil {
		m.SelectionErrorsTotal.WithLabelValues(reason).Inc()
	}
}

// AddClickEventsPurged adds to the retention purge counter
func AddClickEventsPurged(n int64) {
	m := Global()
	if m != nil && n > 0 {
		m.ClickEventsPurged.Add(float64(n))
	}
}

// IncEventsPublished increments the event publish counter
func IncEventsPublished(result string) {
	m := Global()
	if m != nil {
		m.EventsPublishedTotal.WithLabelValues(result).Inc()
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	m := Global()
	if m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
