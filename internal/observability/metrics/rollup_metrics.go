package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/beacon/internal/authorization"
	"gorm.io/gorm"
)

const (
	RollupReasonDeadlineExceeded     = "deadline_exceeded"
	RollupReasonDBLockTimeout        = "db_lock_timeout"
	RollupReasonSerializationFailure = "serialization_failure"
	RollupReasonUniqueViolation      = "unique_violation"
	RollupReasonForbidden            = "forbidden"
	RollupReasonUnknown              = "unknown"

	RollupDeferredReasonLockHeld = "advisory_lock_held"
)

const (
	LockResourceRollupOrg = "rollup_org_lock"
)

// RollupMetrics captures KPI rollup worker health signals.
type RollupMetrics struct {
	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	runTimeouts       *prometheus.CounterVec
	runErrors         *prometheus.CounterVec
	orgsProcessed     *prometheus.CounterVec
	orgsDeferred      *prometheus.CounterVec
	snapshotsUpserted *prometheus.CounterVec
	runLoopLag        prometheus.Observer
	lockWait          *prometheus.HistogramVec
	lockWaitObserver  map[string]prometheus.Observer
}

var (
	rollupMetricsOnce sync.Once
	rollupMetrics     *RollupMetrics
)

// Rollup returns the singleton rollup metrics registry.
func Rollup() *RollupMetrics {
	return RollupWithConfig(Config{})
}

// RollupWithConfig returns the singleton rollup metrics registry using config labels.
func RollupWithConfig(cfg Config) *RollupMetrics {
	rollupMetricsOnce.Do(func() {
		rollupMetrics = newRollupMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return rollupMetrics
}

// ResetRollupMetricsForTest resets the rollup metrics singleton for tests.
func ResetRollupMetricsForTest() {
	rollupMetricsOnce = sync.Once{}
	rollupMetrics = nil
}

func newRollupMetrics(registerer prometheus.Registerer, cfg Config) *RollupMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "beacon"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "beacon_rollup_runs_total",
		Help:        "Rollup worker runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "beacon_rollup_run_duration_seconds",
		Help:        "Rollup run latency to protect snapshot freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	runTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "beacon_rollup_run_timeouts_total",
		Help:        "Rollup runs cut off by their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "beacon_rollup_run_errors_total",
		Help:        "Rollup run errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	orgsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "beacon_rollup_orgs_processed_total",
		Help:        "Organizations rolled up per run to gauge throughput.",
		ConstLabels: constLabels,
	}, []string{"job"})
	orgsDeferred := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "beacon_rollup_orgs_deferred_total",
		Help:        "Organizations skipped by reason, usually a held lock.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	snapshotsUpserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "beacon_rollup_snapshots_upserted_total",
		Help:        "KPI snapshot rows written per metric.",
		ConstLabels: constLabels,
	}, []string{"job", "metric"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "beacon_rollup_runloop_lag_seconds",
		Help:        "Rollup loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "beacon_rollup_lock_wait_seconds",
		Help:        "Advisory lock acquisition time per resource.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		runs,
		runDuration,
		runTimeouts,
		runErrors,
		orgsProcessed,
		orgsDeferred,
		snapshotsUpserted,
		runLoopLag,
		lockWait,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceRollupOrg: lockWait.WithLabelValues(LockResourceRollupOrg),
	}

	return &RollupMetrics{
		runs:              runs,
		runDuration:       runDuration,
		runTimeouts:       runTimeouts,
		runErrors:         runErrors,
		orgsProcessed:     orgsProcessed,
		orgsDeferred:      orgsDeferred,
		snapshotsUpserted: snapshotsUpserted,
		runLoopLag:        runLoopLag,
		lockWait:          lockWait,
		lockWaitObserver:  lockWaitObserver,
	}
}

// IncRun increments the run counter for a rollup job.
func (m *RollupMetrics) IncRun(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

// ObserveRunDuration records rollup run latency in seconds.
func (m *RollupMetrics) ObserveRunDuration(job string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncRunTimeout increments the timeout counter for a rollup job.
func (m *RollupMetrics) IncRunTimeout(job string) {
	if m == nil || m.runTimeouts == nil {
		return
	}
	m.runTimeouts.WithLabelValues(job).Inc()
}

// IncRunError increments the rollup error counter with classification.
func (m *RollupMetrics) IncRunError(job string, err error) {
	if m == nil || err == nil || m.runErrors == nil {
		return
	}
	m.runErrors.WithLabelValues(job, ClassifyRollupReason(err)).Inc()
}

// AddOrgsProcessed increments the processed counter by count.
func (m *RollupMetrics) AddOrgsProcessed(job string, count int) {
	if m == nil || count <= 0 || m.orgsProcessed == nil {
		return
	}
	m.orgsProcessed.WithLabelValues(job).Add(float64(count))
}

// IncOrgDeferred increments the deferred counter for a job and reason.
func (m *RollupMetrics) IncOrgDeferred(job, reason string) {
	if m == nil || m.orgsDeferred == nil {
		return
	}
	m.orgsDeferred.WithLabelValues(job, reason).Inc()
}

// AddSnapshotsUpserted increments the snapshot counter by count.
func (m *RollupMetrics) AddSnapshotsUpserted(job, metric string, count int) {
	if m == nil || count <= 0 || m.snapshotsUpserted == nil {
		return
	}
	m.snapshotsUpserted.WithLabelValues(job, metric).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *RollupMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ObserveLockWait records advisory lock acquisition time.
func (m *RollupMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	if m.lockWait != nil {
		m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
	}
}

// ClassifyRollupReason maps rollup errors to low-cardinality reasons.
func ClassifyRollupReason(err error) string {
	if err == nil {
		return RollupReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RollupReasonDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return RollupReasonForbidden
	}
	if isDBLockTimeout(err) {
		return RollupReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return RollupReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return RollupReasonUniqueViolation
	}
	return RollupReasonUnknown
}

// IsRollupErrorRetryable reports whether the rollup error should be retried.
func IsRollupErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidOrganization) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrRegistered) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDryRunModeUnsupported) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
