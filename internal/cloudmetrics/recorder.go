// Package cloudmetrics exposes pipeline counters on the shared Prometheus
// registry and, in cloud mode, ships them to the configured sink. Recording
// is safe before Register runs; calls land on a no-op until then.
package cloudmetrics

import (
	"strings"
	"sync"
)

type Recorder interface {
	RecordEventIngested(orgID, projectID string)
	RecordKPIRollup(orgID, metric string)
	UpdateActiveProjects(orgID string, count int)
	RecordEngineError(orgID, operation string)
}

type recorder struct {
	metrics      *metrics
	defaultOrgID string
}

type noopRecorder struct{}

func (noopRecorder) RecordEventIngested(string, string) {}
func (noopRecorder) RecordKPIRollup(string, string)     {}
func (noopRecorder) UpdateActiveProjects(string, int)   {}
func (noopRecorder) RecordEngineError(string, string)   {}

var (
	recorderMu     sync.RWMutex
	activeRecorder Recorder = noopRecorder{}
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func current() Recorder {
	recorderMu.RLock()
	defer recorderMu.RUnlock()
	return activeRecorder
}

func RecordEventIngested(orgID, projectID string) { current().RecordEventIngested(orgID, projectID) }

func RecordKPIRollup(orgID, metric string) { current().RecordKPIRollup(orgID, metric) }

func UpdateActiveProjects(orgID string, count int) { current().UpdateActiveProjects(orgID, count) }

func RecordEngineError(orgID, operation string) { current().RecordEngineError(orgID, operation) }

func (r *recorder) ready() bool {
	return r != nil && r.metrics != nil
}

func (r *recorder) RecordEventIngested(orgID, projectID string) {
	if !r.ready() {
		return
	}
	r.metrics.eventsIngested.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(projectID)).Inc()
}

func (r *recorder) RecordKPIRollup(orgID, metric string) {
	if !r.ready() {
		return
	}
	r.metrics.kpiRollups.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(metric)).Inc()
}

func (r *recorder) UpdateActiveProjects(orgID string, count int) {
	if !r.ready() {
		return
	}
	r.metrics.activeProjects.WithLabelValues(r.normalizeOrg(orgID)).Set(float64(max(count, 0)))
}

func (r *recorder) RecordEngineError(orgID, operation string) {
	if !r.ready() {
		return
	}
	r.metrics.engineErrors.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(operation)).Inc()
}

// normalizeOrg falls back to the deployment's default org, then "unknown",
// so label cardinality never explodes on blank IDs.
func (r *recorder) normalizeOrg(orgID string) string {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		orgID = strings.TrimSpace(r.defaultOrgID)
	}
	if orgID == "" {
		return "unknown"
	}
	return orgID
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
