package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/internal/organization/event"
	"github.com/smallbiznis/beacon/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const slugAttempts = 4

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	GenID     *snowflake.Node
	Publisher event.EventPublisher
	Plans     *config.PlanCatalogHolder
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	publisher event.EventPublisher
	plans     *config.PlanCatalogHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log.Named("organization.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		publisher: p.Publisher,
		plans:     p.Plans,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	plan := strings.ToLower(strings.TrimSpace(req.Plan))
	if plan == "" {
		plan = config.DefaultPlanCode
	}
	if s.plans != nil {
		if s.plans.Get().Lookup(plan).Code != plan {
			return nil, domain.ErrInvalidPlan
		}
	}

	org, err := s.createWithOwner(ctx, userID, name, plan, false)
	if err != nil {
		return nil, err
	}

	return &domain.OrganizationResponse{
		ID:         org.ID.String(),
		Name:       org.Name,
		Slug:       org.Slug,
		Plan:       org.Plan,
		IsPersonal: org.IsPersonal,
	}, nil
}

// EnsurePersonalOrg guarantees the user owns a personal workspace. It is
// idempotent: an existing personal org is returned as-is, and a concurrent
// create by another request resolves to the winner's row.
func (s *service) EnsurePersonalOrg(ctx context.Context, userID snowflake.ID, displayName string) (*domain.Organization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	existing, err := s.repo.PersonalOrgByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "Personal"
	}

	org, err := s.createWithOwner(ctx, userID, name, config.DefaultPlanCode, true)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the race against a concurrent bootstrap for the same user.
			return s.repo.PersonalOrgByUser(ctx, userID)
		}
		return nil, err
	}
	return org, nil
}

func (s *service) createWithOwner(ctx context.Context, userID snowflake.ID, name, plan string, personal bool) (*domain.Organization, error) {
	now := time.Now().UTC()

	var org domain.Organization
	var lastErr error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		orgSlug := slug.Make(name)
		if attempt > 0 {
			orgSlug = fmt.Sprintf("%s-%s", orgSlug, randomSuffix())
		}

		org = domain.Organization{
			ID:         s.genID.Generate(),
			Name:       name,
			Slug:       orgSlug,
			Plan:       plan,
			IsPersonal: personal,
			CreatedAt:  now,
		}

		lastErr = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.CreateOrganization(ctx, org); err != nil {
				return err
			}

			member := domain.OrganizationMember{
				ID:        s.genID.Generate(),
				OrgID:     org.ID,
				UserID:    userID,
				Role:      string(domain.RoleOwner),
				CreatedAt: now,
			}
			if err := repo.AddMember(ctx, member); err != nil {
				return err
			}

			return s.emitOrganizationCreated(ctx, tx, org, userID)
		})
		if lastErr == nil {
			return &org, nil
		}
		if !db.IsDuplicateKeyErr(lastErr) {
			return nil, lastErr
		}

		// Slug collision: retry with a random suffix. A duplicate member
		// row means another request already provisioned this user.
		taken, slugErr := s.slugTaken(ctx, org.Slug)
		if slugErr != nil {
			return nil, slugErr
		}
		if !taken {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (s *service) slugTaken(ctx context.Context, orgSlug string) (bool, error) {
	_, err := s.repo.GetOrganizationBySlug(ctx, orgSlug)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}

	return resp, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	raw := strings.TrimSpace(id)
	if raw == "" {
		return nil, domain.ErrInvalidOrganization
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return &domain.OrganizationResponse{
		ID:         org.ID.String(),
		Name:       org.Name,
		Slug:       org.Slug,
		Plan:       org.Plan,
		IsPersonal: org.IsPersonal,
	}, nil
}

func (s *service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberResponse, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	items, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.MemberResponse{
			UserID:    item.UserID.String(),
			Email:     item.Email,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) UpdateMemberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role domain.Role) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	current, err := s.repo.MemberRole(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotAMember
		}
		return err
	}

	// Demoting the last owner would orphan the workspace.
	if currentRole, _ := domain.ParseRole(current); currentRole == domain.RoleOwner && role != domain.RoleOwner {
		owners, err := s.repo.CountOwners(ctx, orgID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return domain.ErrLastOwner
		}
	}

	if err := s.repo.UpdateMemberRole(ctx, orgID, userID, string(role)); err != nil {
		return err
	}

	s.emitMemberEvent(ctx, orgID, event.MemberRoleChangedTopic, map[string]string{
		"organization_id": orgID.String(),
		"user_id":         userID.String(),
		"role":            string(role),
	})
	return nil
}

func (s *service) RemoveMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) error {
	if orgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	current, err := s.repo.MemberRole(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotAMember
		}
		return err
	}

	if currentRole, _ := domain.ParseRole(current); currentRole == domain.RoleOwner {
		owners, err := s.repo.CountOwners(ctx, orgID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return domain.ErrLastOwner
		}
	}

	if err := s.repo.RemoveMember(ctx, orgID, userID); err != nil {
		return err
	}

	s.emitMemberEvent(ctx, orgID, event.MemberRemovedTopic, map[string]string{
		"organization_id": orgID.String(),
		"user_id":         userID.String(),
	})
	return nil
}

func (s *service) emitOrganizationCreated(ctx context.Context, tx *gorm.DB, org domain.Organization, ownerUserID snowflake.ID) error {
	if s.publisher == nil {
		return nil
	}

	payload := map[string]string{
		"organization_id": org.ID.String(),
		"owner_user_id":   ownerUserID.String(),
		"slug":            org.Slug,
		"plan":            org.Plan,
		"created_at":      org.CreatedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.publisher.PublishTx(ctx, tx, org.ID, event.OrganizationCreatedTopic, data)
}

func (s *service) emitMemberEvent(ctx context.Context, orgID snowflake.ID, topic string, payload map[string]string) {
	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal member event payload", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, orgID, topic, data); err != nil {
		s.log.Warn("failed to publish member event", zap.String("topic", topic), zap.Error(err))
	}
}

func randomSuffix() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%1000000)
	}
	return hex.EncodeToString(buf)
}
