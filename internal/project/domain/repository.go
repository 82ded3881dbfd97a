package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, project *Project) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Project, error)
	FindAll(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Project, error)
	FindByKeyHash(ctx context.Context, db *gorm.DB, keyHash string) (*Project, error)
	CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)
	Update(ctx context.Context, db *gorm.DB, project *Project) error
}
