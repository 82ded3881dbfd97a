package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/beacon/internal/kpi/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, snapshot *domain.KPISnapshot) error {
	if snapshot == nil {
		return errors.New("missing_snapshot")
	}
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		return r.upsertSQLite(ctx, db, snapshot)
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "org_id"},
				{Name: "project_id"},
				{Name: "metric_key"},
				{Name: "period_start"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"period_end", "value", "computed_at"}),
		}).
		Create(snapshot).Error
}

func (r *repo) upsertSQLite(ctx context.Context, db *gorm.DB, snapshot *domain.KPISnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO kpi_snapshots (
			id, org_id, project_id, metric_key, period_start, period_end, value, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, project_id, metric_key, period_start) DO UPDATE SET
			period_end = excluded.period_end,
			value = excluded.value,
			computed_at = excluded.computed_at`,
		snapshot.ID,
		snapshot.OrgID,
		snapshot.ProjectID,
		snapshot.MetricKey,
		snapshot.PeriodStart,
		snapshot.PeriodEnd,
		snapshot.Value,
		snapshot.ComputedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.KPIFilter) ([]domain.KPISnapshot, error) {
	var items []domain.KPISnapshot
	stmt := db.WithContext(ctx).Model(&domain.KPISnapshot{}).
		Where("org_id = ?", filter.OrgID)

	if filter.ProjectID != nil {
		stmt = stmt.Where("project_id = ?", *filter.ProjectID)
	}
	if key := strings.TrimSpace(filter.MetricKey); key != "" {
		stmt = stmt.Where("metric_key = ?", key)
	}
	if filter.Since != nil {
		stmt = stmt.Where("period_start >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		stmt = stmt.Where("period_start < ?", filter.Until.UTC())
	}

	err := stmt.Order("period_start asc, metric_key asc, project_id asc").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
