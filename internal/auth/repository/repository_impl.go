package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/auth/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) (domain.Repository, domain.SessionRepository) {
	r := &repo{db: db}
	return r, r
}

func (r *repo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error
	return count, err
}

func (r *repo) Create(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindOne(ctx context.Context, user domain.User) (*domain.User, error) {
	return r.findUser(ctx, user)
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *repo) findUser(ctx context.Context, conds ...interface{}) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, conds...).Error; err != nil {
		return nil, mapNotFound(err, domain.ErrUserNotFound)
	}
	return &user, nil
}

func (r *repo) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	tx := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	return affected(tx, domain.ErrUserNotFound)
}

func (r *repo) CreateSession(ctx context.Context, session *domain.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var session domain.Session
	if err := r.db.WithContext(ctx).First(&session, "session_token_hash = ?", tokenHash).Error; err != nil {
		return nil, mapNotFound(err, domain.ErrSessionNotFound)
	}
	return &session, nil
}

func (r *repo) UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error {
	return r.updateSession(ctx, sessionID, func(tx *gorm.DB) *gorm.DB {
		return tx.Update("last_seen_at", lastSeen)
	})
}

// UpdateActiveOrg writes active_org_id through Select so a nil org clears the
// column instead of being skipped as a zero value.
func (r *repo) UpdateActiveOrg(ctx context.Context, sessionID snowflake.ID, activeOrgID *snowflake.ID) error {
	return r.updateSession(ctx, sessionID, func(tx *gorm.DB) *gorm.DB {
		return tx.Select("active_org_id").Updates(&domain.Session{ActiveOrgID: activeOrgID})
	})
}

func (r *repo) RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error {
	return r.updateSession(ctx, sessionID, func(tx *gorm.DB) *gorm.DB {
		return tx.Update("revoked_at", revokedAt)
	})
}

func (r *repo) updateSession(ctx context.Context, sessionID snowflake.ID, apply func(*gorm.DB) *gorm.DB) error {
	tx := apply(r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", sessionID))
	return affected(tx, domain.ErrSessionNotFound)
}

// affected reports missing when the statement matched no rows.
func affected(tx *gorm.DB, missing error) error {
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return missing
	}
	return nil
}

// mapNotFound swaps gorm's not-found for the domain sentinel callers match on.
func mapNotFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
