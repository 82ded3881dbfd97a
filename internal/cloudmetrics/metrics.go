package cloudmetrics

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	eventsIngested *prometheus.CounterVec
	kpiRollups     *prometheus.CounterVec
	activeProjects *prometheus.GaugeVec
	engineErrors   *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_accounting_events_ingested_total",
			Help: "Analytics events accepted through the collect endpoint.",
		}, []string{"org", "project"}),
		kpiRollups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_accounting_kpi_rollups_total",
			Help: "KPI snapshot computations completed by the rollup worker.",
		}, []string{"org", "metric"}),
		activeProjects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beacon_accounting_active_projects",
			Help: "Active projects per organization as of the last rollup.",
		}, []string{"org"}),
		engineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_accounting_engine_errors_total",
			Help: "Internal pipeline failures by operation.",
		}, []string{"org", "operation"}),
	}
	registry.MustRegister(m.eventsIngested, m.kpiRollups, m.activeProjects, m.engineErrors)
	return m
}

type systemMetrics struct {
	memorySys     prometheus.Gauge
	organizations prometheus.Gauge
}

func newSystemMetrics(registry *prometheus.Registry) *systemMetrics {
	s := &systemMetrics{
		memorySys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_memory_sys_bytes",
			Help: "Memory obtained from the OS by the process.",
		}),
		organizations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beacon_organizations_total",
			Help: "Organizations present in this installation.",
		}),
	}
	registry.MustRegister(s.memorySys, s.organizations)
	return s
}
