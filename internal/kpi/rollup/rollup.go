package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/clock"
	"github.com/smallbiznis/beacon/internal/cloudmetrics"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	obsmetrics "github.com/smallbiznis/beacon/internal/observability/metrics"
	"github.com/smallbiznis/beacon/internal/ratelimit"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobName = "kpi_rollup"

	day = 24 * time.Hour
)

var ErrInvalidConfig = errors.New("rollup worker is missing required dependencies")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     kpidomain.Repository
	Clock    clock.Clock
	AuthzSvc authorization.Service

	Locker     *ratelimit.Locker   `optional:"true"`
	Metrics    *telemetry.Metrics  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

// Worker recomputes daily KPI snapshots from the events table. Every run
// recomputes the full lookback window, so a crashed run never leaves a
// period half-summed.
type Worker struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock
	repo  kpidomain.Repository

	authzSvc   authorization.Service
	locker     *ratelimit.Locker
	metrics    *telemetry.Metrics
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Worker, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Repo == nil || p.Clock == nil || p.AuthzSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("kpi.rollup"),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		authzSvc:   p.AuthzSvc,
		locker:     p.Locker,
		metrics:    p.Metrics,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	ctx = w.runContext(ctx, 0)
	nextRun := w.clock.Now().Add(w.cfg.Interval)
	rollMetrics := obsmetrics.Rollup()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			rollMetrics.ObserveRunLoopLag(runLag)
		}
		if err := w.RunOnce(ctx); err != nil {
			w.logger(ctx).Warn("rollup run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(w.cfg.Interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(parent context.Context) error {
	run := w.newRun()
	ctx, cancel := context.WithTimeout(parent, w.cfg.RunTimeout)
	defer cancel()
	ctx = w.runContext(ctx, 0)

	rollMetrics := obsmetrics.Rollup()
	rollMetrics.IncRun(jobName)
	w.logRunStart(ctx, run)

	err := w.rollupAll(ctx, run)
	rollMetrics.ObserveRunDuration(jobName, w.clock.Now().Sub(run.startedAt))
	w.logRunFinish(ctx, run)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		rollMetrics.IncRunTimeout(jobName)
	}
	rollMetrics.IncRunError(jobName, err)
	if isTimeout {
		w.logger(ctx).Warn("rollup run timed out",
			zap.Duration("timeout", w.cfg.RunTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", jobName, err)
}

func (w *Worker) rollupAll(ctx context.Context, run *runInfo) error {
	now := w.clock.Now().UTC()
	since := now.Add(-w.cfg.Lookback)

	orgIDs, err := w.fetchOrgsWithEvents(ctx, since)
	if err != nil {
		return err
	}

	rollMetrics := obsmetrics.Rollup()
	var jobErr error
	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		orgCtx := w.runContext(ctx, orgID)

		token, acquired, err := w.acquireOrgLock(orgCtx, orgID)
		if err != nil {
			run.errors++
			jobErr = errors.Join(jobErr, err)
			continue
		}
		if !acquired {
			rollMetrics.IncOrgDeferred(jobName, obsmetrics.RollupDeferredReasonLockHeld)
			continue
		}

		orgStart := time.Now()
		err = w.rollupOrg(orgCtx, orgID, since, now)
		w.releaseOrgLock(orgCtx, orgID, token)
		if err != nil {
			run.errors++
			jobErr = errors.Join(jobErr, err)
			w.recordOrgRollup("error", orgID, time.Since(orgStart))
			cloudmetrics.RecordEngineError(orgID.String(), jobName)
			w.logger(orgCtx).Warn("org rollup failed",
				zap.String("org_id", orgID.String()),
				zap.Error(err),
			)
			continue
		}
		run.processed++
		w.recordOrgRollup("ok", orgID, time.Since(orgStart))
	}
	rollMetrics.AddOrgsProcessed(jobName, run.processed)

	return jobErr
}

type orgRow struct {
	OrgID snowflake.ID `gorm:"column:org_id"`
}

func (w *Worker) fetchOrgsWithEvents(ctx context.Context, since time.Time) ([]snowflake.ID, error) {
	var rows []orgRow
	err := w.db.WithContext(ctx).Raw(
		`SELECT DISTINCT org_id
		 FROM events
		 WHERE occurred_at >= ?
		 ORDER BY org_id ASC`,
		since,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.OrgID)
	}
	return ids, nil
}

type projectCountRow struct {
	ProjectID snowflake.ID `gorm:"column:project_id"`
	Total     int64        `gorm:"column:total"`
}

func (w *Worker) rollupOrg(ctx context.Context, orgID snowflake.ID, since, now time.Time) error {
	if err := w.authorizeSystem(ctx, orgID); err != nil {
		return err
	}

	rollMetrics := obsmetrics.Rollup()
	for dayStart := since.Truncate(day); dayStart.Before(now); dayStart = dayStart.Add(day) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		dayEnd := dayStart.Add(day)

		var counts []projectCountRow
		err := w.db.WithContext(ctx).Raw(
			`SELECT project_id, COUNT(1) AS total
			 FROM events
			 WHERE org_id = ? AND occurred_at >= ? AND occurred_at < ?
			 GROUP BY project_id
			 ORDER BY project_id ASC`,
			orgID,
			dayStart,
			dayEnd,
		).Scan(&counts).Error
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			continue
		}

		var orgTotal int64
		for _, count := range counts {
			orgTotal += count.Total
			if err := w.upsertSnapshot(ctx, orgID, count.ProjectID, kpidomain.MetricEventsTotal, dayStart, dayEnd, float64(count.Total), now); err != nil {
				return err
			}
		}
		if err := w.upsertSnapshot(ctx, orgID, 0, kpidomain.MetricEventsTotal, dayStart, dayEnd, float64(orgTotal), now); err != nil {
			return err
		}
		if err := w.upsertSnapshot(ctx, orgID, 0, kpidomain.MetricActiveProjects, dayStart, dayEnd, float64(len(counts)), now); err != nil {
			return err
		}

		rollMetrics.AddSnapshotsUpserted(jobName, kpidomain.MetricEventsTotal, len(counts)+1)
		rollMetrics.AddSnapshotsUpserted(jobName, kpidomain.MetricActiveProjects, 1)
		cloudmetrics.RecordKPIRollup(orgID.String(), kpidomain.MetricEventsTotal)
		cloudmetrics.UpdateActiveProjects(orgID.String(), len(counts))
	}

	return nil
}

func (w *Worker) upsertSnapshot(
	ctx context.Context,
	orgID snowflake.ID,
	projectID snowflake.ID,
	metricKey string,
	periodStart time.Time,
	periodEnd time.Time,
	value float64,
	computedAt time.Time,
) error {
	err := w.repo.Upsert(ctx, w.db, &kpidomain.KPISnapshot{
		ID:          w.genID.Generate(),
		OrgID:       orgID,
		ProjectID:   projectID,
		MetricKey:   metricKey,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Value:       value,
		ComputedAt:  computedAt,
	})
	if err != nil {
		return err
	}
	if w.obsMetrics != nil {
		w.obsMetrics.RecordKPIUpsert(ctx, metricKey)
	}
	return nil
}

func (w *Worker) authorizeSystem(ctx context.Context, orgID snowflake.ID) error {
	if w.authzSvc == nil {
		return authorization.ErrForbidden
	}
	return w.authzSvc.Authorize(ctx, "system", orgID.String(), authorization.ObjectKPI, authorization.ActionKPIRollup)
}

func (w *Worker) acquireOrgLock(ctx context.Context, orgID snowflake.ID) (string, bool, error) {
	if w.locker == nil {
		return "", true, nil
	}
	lockStart := time.Now()
	token, acquired, err := w.locker.TryLock(ctx, orgLockKey(orgID), w.cfg.LockTTL)
	obsmetrics.Rollup().ObserveLockWait(obsmetrics.LockResourceRollupOrg, time.Since(lockStart))
	return token, acquired, err
}

func (w *Worker) releaseOrgLock(ctx context.Context, orgID snowflake.ID, token string) {
	if w.locker == nil || token == "" {
		return
	}
	if err := w.locker.Release(ctx, orgLockKey(orgID), token); err != nil {
		w.logger(ctx).Warn("failed to release rollup lock",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}

func (w *Worker) recordOrgRollup(status string, orgID snowflake.ID, duration time.Duration) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordKPIRollup(status, orgID.String(), duration)
}

func orgLockKey(orgID snowflake.ID) string {
	return fmt.Sprintf("kpi:rollup:org:%s", orgID)
}
