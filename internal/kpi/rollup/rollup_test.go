package rollup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/beacon/internal/clock"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	kpirepository "github.com/smallbiznis/beacon/internal/kpi/repository"
	obsmetrics "github.com/smallbiznis/beacon/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockAuthzSvc struct {
	err error
}

func (m *mockAuthzSvc) Authorize(ctx context.Context, actor, orgID, object, action string) error {
	return m.err
}

func newRollupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:rollup_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&eventdomain.Event{}, &kpidomain.KPISnapshot{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRunOnceTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetRollupMetricsForTest()
	obsmetrics.RollupWithConfig(obsmetrics.Config{
		ServiceName: "beacon",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	worker, err := New(Params{
		DB:       newRollupTestDB(t),
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     kpirepository.Provide(),
		Clock:    clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		AuthzSvc: &mockAuthzSvc{},
		Config:   Config{RunTimeout: time.Nanosecond},
	})
	if err != nil {
		t.Fatalf("New worker: %v", err)
	}

	if err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	labels := map[string]string{
		"service": "beacon",
		"env":     "test",
		"job":     "kpi_rollup",
	}
	if got := getCounterValue(t, registry, "beacon_rollup_run_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "beacon",
		"env":     "test",
		"job":     "kpi_rollup",
		"reason":  obsmetrics.RollupReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "beacon_rollup_run_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetRollupMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
