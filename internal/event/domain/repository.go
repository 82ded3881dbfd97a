package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID     snowflake.ID
	ProjectID *snowflake.ID
	Name      string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

type Repository interface {
	// Insert writes the event; a dedupe-key conflict is swallowed and
	// reported as inserted == false.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	FindByDedupeKey(ctx context.Context, db *gorm.DB, projectID snowflake.ID, dedupeKey string) (*Event, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Event, error)
	FindRecent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]Event, error)
}
