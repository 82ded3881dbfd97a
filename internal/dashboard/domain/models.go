// Package domain defines the admin dashboard read model.
package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/beacon/internal/tenant"
)

type Service interface {
	// Summary aggregates the workspace overview through a bound tenant
	// gateway; it never reads outside the gateway's organization.
	Summary(ctx context.Context, gw *tenant.Gateway) (*Summary, error)
}

type Summary struct {
	TotalProjects  int `json:"total_projects"`
	ActiveProjects int `json:"active_projects"`
	// TotalEvents counts the recent-events page below, not the whole events
	// table. Dashboards built on this field expect that behavior.
	TotalEvents  int           `json:"total_events"`
	Projects     []ProjectCard `json:"projects"`
	RecentEvents []RecentEvent `json:"recent_events"`
	KPIs         []KPIPoint    `json:"kpis"`
}

type ProjectCard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type RecentEvent struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KPIPoint is one snapshot row. ProjectID is empty for org-level metrics.
type KPIPoint struct {
	MetricKey   string    `json:"metric_key"`
	ProjectID   string    `json:"project_id,omitempty"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Value       float64   `json:"value"`
}
