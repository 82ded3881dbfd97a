package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type KPIFilter struct {
	OrgID     snowflake.ID
	ProjectID *snowflake.ID
	MetricKey string
	Since     *time.Time
	Until     *time.Time
}

type Repository interface {
	// Upsert writes the snapshot for its unique tuple, replacing any
	// previously computed value.
	Upsert(ctx context.Context, db *gorm.DB, snapshot *KPISnapshot) error
	List(ctx context.Context, db *gorm.DB, filter KPIFilter) ([]KPISnapshot, error)
}
