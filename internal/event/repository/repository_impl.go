package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/event/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	if event == nil {
		return false, errors.New("missing_event")
	}
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		return r.insertSQLite(ctx, db, event)
	}

	stmt := db.WithContext(ctx)
	if hasDedupeKey(event) {
		stmt = stmt.Clauses(buildDedupeConflictClause(db))
	}
	result := stmt.Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) insertSQLite(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	query := `INSERT INTO events (
		id, org_id, project_id, name, metadata, dedupe_key, occurred_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if hasDedupeKey(event) {
		query += " ON CONFLICT (project_id, dedupe_key) DO NOTHING"
	}
	result := db.WithContext(ctx).Exec(
		query,
		event.ID,
		event.OrgID,
		event.ProjectID,
		event.Name,
		event.Metadata,
		event.DedupeKey,
		event.OccurredAt,
		event.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByDedupeKey(ctx context.Context, db *gorm.DB, projectID snowflake.ID, dedupeKey string) (*domain.Event, error) {
	key := strings.TrimSpace(dedupeKey)
	if key == "" {
		return nil, nil
	}
	var event domain.Event
	err := db.WithContext(ctx).
		Where("project_id = ? AND dedupe_key = ?", projectID, key).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Event, error) {
	var items []domain.Event
	stmt := db.WithContext(ctx).Model(&domain.Event{}).
		Where("org_id = ?", filter.OrgID)

	if filter.ProjectID != nil {
		stmt = stmt.Where("project_id = ?", *filter.ProjectID)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("name = ?", name)
	}
	if filter.Since != nil {
		stmt = stmt.Where("occurred_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		stmt = stmt.Where("occurred_at <= ?", filter.Until.UTC())
	}

	stmt = stmt.Order("occurred_at asc, id asc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindRecent(ctx context.Context, db *gorm.DB, orgID snowflake.ID, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []domain.Event
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("occurred_at desc, id desc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func hasDedupeKey(event *domain.Event) bool {
	return event.DedupeKey != nil && strings.TrimSpace(*event.DedupeKey) != ""
}

func buildDedupeConflictClause(db *gorm.DB) clause.OnConflict {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "dedupe_key"}},
		DoNothing: true,
	}
	if db != nil && strings.EqualFold(db.Dialector.Name(), "postgres") {
		conflict.TargetWhere = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "dedupe_key IS NOT NULL"},
		}}
	}
	return conflict
}
