package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/project/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, project *domain.Project) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO projects (
			id, org_id, name, description, domain, key_hash, key_prefix,
			allowed_origins, is_active, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.OrgID,
		project.Name,
		project.Description,
		project.Domain,
		project.KeyHash,
		project.KeyPrefix,
		project.AllowedOrigins,
		project.IsActive,
		project.Metadata,
		project.CreatedAt,
		project.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Project, error) {
	var project domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, description, domain, key_hash, key_prefix,
		        allowed_origins, is_active, metadata, created_at, updated_at
		 FROM projects WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == 0 {
		return nil, nil
	}
	return &project, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Project, error) {
	var items []domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, description, domain, key_hash, key_prefix,
		        allowed_origins, is_active, metadata, created_at, updated_at
		 FROM projects WHERE org_id = ? ORDER BY created_at DESC, id DESC`,
		orgID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByKeyHash(ctx context.Context, db *gorm.DB, keyHash string) (*domain.Project, error) {
	trimmed := strings.TrimSpace(keyHash)
	if trimmed == "" {
		return nil, nil
	}
	var project domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, description, domain, key_hash, key_prefix,
		        allowed_origins, is_active, metadata, created_at, updated_at
		 FROM projects WHERE key_hash = ?`,
		trimmed,
	).Scan(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == 0 {
		return nil, nil
	}
	return &project, nil
}

func (r *repo) CountByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM projects WHERE org_id = ?`,
		orgID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, project *domain.Project) error {
	if project == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE projects
		 SET name = ?, description = ?, domain = ?, allowed_origins = ?, is_active = ?, metadata = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		project.Name,
		project.Description,
		project.Domain,
		project.AllowedOrigins,
		project.IsActive,
		project.Metadata,
		project.UpdatedAt,
		project.OrgID,
		project.ID,
	).Error
}
