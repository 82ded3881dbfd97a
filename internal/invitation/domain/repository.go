package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, inv Invitation) error
	FindByCode(ctx context.Context, code string) (*Invitation, error)
	FindPending(ctx context.Context, orgID snowflake.ID, email string) (*Invitation, error)
	ListByOrg(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	MarkAccepted(ctx context.Context, id snowflake.ID, acceptedAt time.Time) error
}
