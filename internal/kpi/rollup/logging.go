package rollup

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/beacon/internal/observability/context"
	obslogger "github.com/smallbiznis/beacon/internal/observability/logger"
	"go.uber.org/zap"
)

const workerActor = "kpi.rollup"

// runInfo carries the identity and tallies of a single rollup pass.
type runInfo struct {
	runID     string
	startedAt time.Time
	processed int
	errors    int
}

func (w *Worker) newRun() *runInfo {
	return &runInfo{
		runID:     w.genID.Generate().String(),
		startedAt: w.clock.Now(),
	}
}

// runContext stamps the system actor and, when known, the organization onto
// the context. Query logs emitted under this context line up with the
// worker's own log lines.
func (w *Worker) runContext(ctx context.Context, orgID snowflake.ID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = obscontext.WithActor(ctx, "system", workerActor)
	if orgID != 0 {
		ctx = obscontext.WithOrgID(ctx, orgID.String())
	}
	return ctx
}

func (w *Worker) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, w.log)
}

func (w *Worker) logRunStart(ctx context.Context, run *runInfo) {
	if run == nil {
		return
	}
	w.logger(ctx).Info("rollup.run.start",
		zap.String("job", jobName),
		zap.String("run_id", run.runID),
	)
}

func (w *Worker) logRunFinish(ctx context.Context, run *runInfo) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", jobName),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", w.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("orgs_processed", run.processed),
		zap.Int("error_count", run.errors),
	}
	log := w.logger(ctx)
	if run.errors > 0 {
		log.Warn("rollup.run.finish", fields...)
		return
	}
	log.Info("rollup.run.finish", fields...)
}
