package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the analytics platform.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	outboxDispatch     *prometheus.CounterVec
	outboxDispatchTime *prometheus.HistogramVec
	outboxBacklog      prometheus.Gauge
	eventsIngested     *prometheus.CounterVec
	eventsDeduplicated *prometheus.CounterVec
	kpiRollups         *prometheus.CounterVec
	kpiRollupDuration  *prometheus.HistogramVec
	dashboardQueries   *prometheus.HistogramVec
	authzDecisions     *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics for telemetry.
func NewMetrics() *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_api_requests_total",
		Help: "Counts API requests by method, status, and tenant.",
	}, []string{"method", "status", "tenant"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "beacon_api_duration_seconds",
		Help:    "API request latency per method/tenant.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "tenant"})

	outboxDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_outbox_dispatch_total",
		Help: "Counts dispatcher batches by status.",
	}, []string{"status"})

	outboxDispatchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "beacon_outbox_dispatch_duration_seconds",
		Help:    "Dispatcher batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	outboxBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_outbox_backlog",
		Help: "Number of pending events in the outbox.",
	})

	eventsIngested := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_ingested_total",
			Help: "Analytics events accepted for storage.",
		},
		[]string{"tenant", "source"},
	)

	eventsDeduplicated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_deduplicated_total",
			Help: "Analytics events dropped as duplicates.",
		},
		[]string{"tenant"},
	)

	kpiRollups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_kpi_rollups_total",
			Help: "KPI rollup runs by status.",
		},
		[]string{"status"},
	)

	kpiRollupDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_kpi_rollup_duration_seconds",
			Help:    "KPI rollup run durations per tenant.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	dashboardQueries := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_dashboard_query_duration_seconds",
			Help:    "Dashboard summary query latency per section.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"section"},
	)

	authzDecisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_authz_decisions_total",
			Help: "Access guard decisions by outcome.",
		},
		[]string{"outcome"},
	)

	prometheus.MustRegister(
		apiRequests,
		apiDuration,
		outboxDispatch,
		outboxDispatchTime,
		outboxBacklog,
		eventsIngested,
		eventsDeduplicated,
		kpiRollups,
		kpiRollupDuration,
		dashboardQueries,
		authzDecisions,
	)

	return &Metrics{
		apiRequests:        apiRequests,
		apiDuration:        apiDuration,
		outboxDispatch:     outboxDispatch,
		outboxDispatchTime: outboxDispatchTime,
		outboxBacklog:      outboxBacklog,
		eventsIngested:     eventsIngested,
		eventsDeduplicated: eventsDeduplicated,
		kpiRollups:         kpiRollups,
		kpiRollupDuration:  kpiRollupDuration,
		dashboardQueries:   dashboardQueries,
		authzDecisions:     authzDecisions,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, status, tenant string, duration time.Duration) {
	if m == nil {
		return
	}
	tenantLabel := sanitizeTenant(tenant)
	methodLabel := sanitizeLabel(method)
	m.apiRequests.WithLabelValues(methodLabel, status, tenantLabel).Inc()
	m.apiDuration.WithLabelValues(methodLabel, tenantLabel).Observe(duration.Seconds())
}

// RecordOutboxBatch registers dispatch batch metrics.
func (m *Metrics) RecordOutboxBatch(status string, count int, duration time.Duration) {
	if m == nil {
		return
	}
	_ = count
	m.outboxDispatch.WithLabelValues(status).Inc()
	m.outboxDispatchTime.WithLabelValues(status).Observe(duration.Seconds())
}

// SetOutboxBacklog updates the backlog gauge.
func (m *Metrics) SetOutboxBacklog(value float64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(value)
}

// RecordEventIngested counts an accepted analytics event.
func (m *Metrics) RecordEventIngested(tenant, source string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(sanitizeTenant(tenant), sanitizeLabel(source)).Inc()
}

// RecordEventDeduplicated counts a duplicate analytics event.
func (m *Metrics) RecordEventDeduplicated(tenant string) {
	if m == nil {
		return
	}
	m.eventsDeduplicated.WithLabelValues(sanitizeTenant(tenant)).Inc()
}

// RecordKPIRollup observes one rollup run.
func (m *Metrics) RecordKPIRollup(status, tenant string, duration time.Duration) {
	if m == nil {
		return
	}
	m.kpiRollups.WithLabelValues(status).Inc()
	m.kpiRollupDuration.WithLabelValues(sanitizeTenant(tenant)).Observe(duration.Seconds())
}

// ObserveDashboardSection observes one dashboard summary section fetch.
func (m *Metrics) ObserveDashboardSection(section string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dashboardQueries.WithLabelValues(sanitizeLabel(section)).Observe(duration.Seconds())
}

// RecordAuthzDecision counts an access guard outcome.
func (m *Metrics) RecordAuthzDecision(outcome string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(sanitizeLabel(outcome)).Inc()
}

func sanitizeTenant(tenant string) string {
	if tenant == "" {
		return "unknown"
	}
	return tenant
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
