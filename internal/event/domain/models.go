package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event is an immutable analytics fact. Rows are never updated after insert.
type Event struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID      snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index:ix_events_org_occurred,priority:1"`
	ProjectID  snowflake.ID      `json:"project_id" gorm:"column:project_id;not null;uniqueIndex:ux_events_project_dedupe,priority:1"`
	Name       string            `json:"name" gorm:"type:text;not null"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	DedupeKey  *string           `json:"dedupe_key,omitempty" gorm:"column:dedupe_key;type:text;uniqueIndex:ux_events_project_dedupe,priority:2"`
	OccurredAt time.Time         `json:"occurred_at" gorm:"column:occurred_at;not null;index:ix_events_org_occurred,priority:2"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Event) TableName() string { return "events" }
