package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/clock"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	kpirepository "github.com/smallbiznis/beacon/internal/kpi/repository"
	obsmetrics "github.com/smallbiznis/beacon/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type rollupFixture struct {
	db     *gorm.DB
	worker *Worker
	repo   kpidomain.Repository
	clock  *clock.FakeClock
	node   *snowflake.Node
}

func newRollupFixture(t *testing.T, start time.Time, authzErr error) *rollupFixture {
	t.Helper()

	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetRollupMetricsForTest()
	obsmetrics.RollupWithConfig(obsmetrics.Config{
		ServiceName: "beacon",
		Environment: "test",
	})

	db := newRollupTestDB(t)

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	fake := clock.NewFakeClock(start)
	repo := kpirepository.Provide()

	worker, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repo,
		Clock:    fake,
		AuthzSvc: &mockAuthzSvc{err: authzErr},
		Config:   Config{Lookback: 48 * time.Hour, RunTimeout: time.Minute},
	})
	if err != nil {
		t.Fatalf("New worker: %v", err)
	}

	return &rollupFixture{db: db, worker: worker, repo: repo, clock: fake, node: node}
}

func (f *rollupFixture) seedEvent(t *testing.T, orgID, projectID snowflake.ID, occurredAt time.Time) {
	t.Helper()
	record := eventdomain.Event{
		ID:         f.node.Generate(),
		OrgID:      orgID,
		ProjectID:  projectID,
		Name:       "page_view",
		OccurredAt: occurredAt,
		CreatedAt:  occurredAt,
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func (f *rollupFixture) snapshotValue(t *testing.T, orgID, projectID snowflake.ID, metric string, periodStart time.Time) float64 {
	t.Helper()
	rows := f.listSnapshots(t, orgID)
	for _, row := range rows {
		if row.ProjectID == projectID && row.MetricKey == metric && row.PeriodStart.Equal(periodStart) {
			return row.Value
		}
	}
	t.Fatalf("snapshot org=%s project=%s metric=%s period=%s not found", orgID, projectID, metric, periodStart)
	return 0
}

func (f *rollupFixture) listSnapshots(t *testing.T, orgID snowflake.ID) []kpidomain.KPISnapshot {
	t.Helper()
	rows, err := f.repo.List(context.Background(), f.db, kpidomain.KPIFilter{OrgID: orgID})
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	return rows
}

func TestWorkerRollsUpDailySnapshotsPerOrgAndProject(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	f := newRollupFixture(t, day2.Add(12*time.Hour), nil)

	org1 := snowflake.ID(1001)
	org2 := snowflake.ID(2002)
	projectA := snowflake.ID(11)
	projectB := snowflake.ID(12)
	projectC := snowflake.ID(21)

	// 1. Seed two orgs so per-org sums cannot bleed into each other.
	f.seedEvent(t, org1, projectA, day1.Add(1*time.Hour))
	f.seedEvent(t, org1, projectA, day1.Add(2*time.Hour))
	f.seedEvent(t, org1, projectA, day1.Add(3*time.Hour))
	f.seedEvent(t, org1, projectB, day1.Add(4*time.Hour))
	f.seedEvent(t, org1, projectB, day1.Add(5*time.Hour))
	f.seedEvent(t, org1, projectA, day2.Add(1*time.Hour))
	f.seedEvent(t, org2, projectC, day1.Add(6*time.Hour))

	// 2. First run computes both days inside the lookback window.
	if err := f.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if got := f.snapshotValue(t, org1, projectA, kpidomain.MetricEventsTotal, day1); got != 3 {
		t.Fatalf("day1 project A events_total = %v, want 3", got)
	}
	if got := f.snapshotValue(t, org1, projectB, kpidomain.MetricEventsTotal, day1); got != 2 {
		t.Fatalf("day1 project B events_total = %v, want 2", got)
	}
	if got := f.snapshotValue(t, org1, 0, kpidomain.MetricEventsTotal, day1); got != 5 {
		t.Fatalf("day1 org events_total = %v, want 5", got)
	}
	if got := f.snapshotValue(t, org1, 0, kpidomain.MetricActiveProjects, day1); got != 2 {
		t.Fatalf("day1 active_projects = %v, want 2", got)
	}
	if got := f.snapshotValue(t, org1, 0, kpidomain.MetricEventsTotal, day2); got != 1 {
		t.Fatalf("day2 org events_total = %v, want 1", got)
	}
	if got := f.snapshotValue(t, org1, 0, kpidomain.MetricActiveProjects, day2); got != 1 {
		t.Fatalf("day2 active_projects = %v, want 1", got)
	}
	if got := f.snapshotValue(t, org2, projectC, kpidomain.MetricEventsTotal, day1); got != 1 {
		t.Fatalf("day1 org2 project C events_total = %v, want 1", got)
	}
	if got := f.snapshotValue(t, org2, 0, kpidomain.MetricEventsTotal, day1); got != 1 {
		t.Fatalf("day1 org2 events_total = %v, want 1", got)
	}
}

func TestWorkerRecomputesWithoutDuplicateRows(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	f := newRollupFixture(t, day1.Add(20*time.Hour), nil)

	orgID := snowflake.ID(1001)
	projectA := snowflake.ID(11)

	f.seedEvent(t, orgID, projectA, day1.Add(1*time.Hour))
	f.seedEvent(t, orgID, projectA, day1.Add(2*time.Hour))

	// 1. First run sees two events for the day.
	if err := f.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if got := f.snapshotValue(t, orgID, projectA, kpidomain.MetricEventsTotal, day1); got != 2 {
		t.Fatalf("events_total after first run = %v, want 2", got)
	}

	// 2. A late event lands inside the same day, then the clock moves on.
	f.seedEvent(t, orgID, projectA, day1.Add(3*time.Hour))
	f.clock.Advance(6 * time.Hour)

	if err := f.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	// 3. The snapshot is overwritten in place, never appended.
	if got := f.snapshotValue(t, orgID, projectA, kpidomain.MetricEventsTotal, day1); got != 3 {
		t.Fatalf("events_total after recompute = %v, want 3", got)
	}

	var count int64
	err := f.db.Model(&kpidomain.KPISnapshot{}).
		Where("org_id = ? AND project_id = ? AND metric_key = ? AND period_start = ?",
			orgID, projectA, kpidomain.MetricEventsTotal, day1).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single snapshot row for the tuple, got %d", count)
	}
}

func TestWorkerSkipsDaysWithoutEvents(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	f := newRollupFixture(t, day1.Add(40*time.Hour), nil)

	orgID := snowflake.ID(1001)
	f.seedEvent(t, orgID, snowflake.ID(11), day1.Add(1*time.Hour))

	if err := f.worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	rows := f.listSnapshots(t, orgID)
	for _, row := range rows {
		if !row.PeriodStart.Equal(day1) {
			t.Fatalf("unexpected snapshot for empty day %s", row.PeriodStart)
		}
	}
}

func TestWorkerFailsClosedWhenAuthorizationDenied(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	f := newRollupFixture(t, day1.Add(12*time.Hour), authorization.ErrForbidden)

	orgID := snowflake.ID(1001)
	f.seedEvent(t, orgID, snowflake.ID(11), day1.Add(1*time.Hour))

	err := f.worker.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected RunOnce to fail when authorization is denied")
	}
	if !errors.Is(err, authorization.ErrForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}

	if rows := f.listSnapshots(t, orgID); len(rows) != 0 {
		t.Fatalf("expected no snapshots for a denied org, got %d", len(rows))
	}
}
