package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	MetricEventsTotal    = "events_total"
	MetricActiveProjects = "active_projects"
)

// KPISnapshot is one computed metric for one period. Recomputing a period
// overwrites the row; readers never see partial sums.
type KPISnapshot struct {
	ID    snowflake.ID `json:"id" gorm:"primaryKey;column:id"`
	OrgID snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_kpi_snapshots_tuple,priority:1"`

	// ProjectID is zero for org-level metrics so the unique tuple stays
	// enforceable on every dialect.
	ProjectID   snowflake.ID `json:"project_id,omitempty" gorm:"column:project_id;not null;default:0;uniqueIndex:ux_kpi_snapshots_tuple,priority:2"`
	MetricKey   string       `json:"metric_key" gorm:"column:metric_key;type:varchar(64);not null;uniqueIndex:ux_kpi_snapshots_tuple,priority:3"`
	PeriodStart time.Time    `json:"period_start" gorm:"column:period_start;not null;uniqueIndex:ux_kpi_snapshots_tuple,priority:4"`
	PeriodEnd   time.Time    `json:"period_end" gorm:"column:period_end;not null"`
	Value       float64      `json:"value" gorm:"column:value;not null"`
	ComputedAt  time.Time    `json:"computed_at" gorm:"column:computed_at;not null"`
}

func (KPISnapshot) TableName() string {
	return "kpi_snapshots"
}
