package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/events"
	"github.com/smallbiznis/beacon/internal/invitation/domain"
	orgdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/internal/providers/email"
	"github.com/smallbiznis/beacon/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const InvitationAcceptedTopic = "invitation.accepted"

const inviteCodeBytes = 16

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	OrgRepo orgdomain.Repository
	Email   email.Provider
	Outbox  *events.Outbox            `optional:"true"`
	Plans   *config.PlanCatalogHolder `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	orgRepo orgdomain.Repository
	email   email.Provider
	outbox  *events.Outbox
	plans   *config.PlanCatalogHolder
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("invitation.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		orgRepo: p.OrgRepo,
		email:   p.Email,
		outbox:  p.Outbox,
		plans:   p.Plans,
	}
}

// Invite offers a workspace seat to an email address. The inviter must hold
// admin or owner, and may not grant a role above their own. Re-inviting a
// pending email resends the original code instead of minting a second one.
func (s *service) Invite(ctx context.Context, req domain.InviteRequest) (*domain.Invitation, error) {
	if req.InviterID == 0 {
		return nil, authorization.ErrUnauthenticated
	}
	if req.OrgID == 0 {
		return nil, authorization.ErrInvalidOrganization
	}

	address, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	inviteeEmail := strings.ToLower(strings.TrimSpace(address.Address))

	roleRaw := strings.TrimSpace(req.Role)
	if roleRaw == "" {
		roleRaw = string(orgdomain.RoleMember)
	}
	role, ok := orgdomain.ParseRole(roleRaw)
	if !ok {
		return nil, domain.ErrInvalidRole
	}

	inviterRoleRaw, err := s.orgRepo.MemberRole(ctx, req.OrgID, req.InviterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authorization.ErrNotAMember
		}
		return nil, err
	}
	inviterRole, _ := orgdomain.ParseRole(inviterRoleRaw)
	if !inviterRole.Satisfies(orgdomain.RoleAdmin) {
		return nil, authorization.ErrInsufficientRole
	}
	if !inviterRole.Satisfies(role) {
		return nil, authorization.ErrInsufficientRole
	}

	existing, err := s.repo.FindPending(ctx, req.OrgID, inviteeEmail)
	if err == nil {
		s.sendInviteMail(ctx, req.OrgID, existing)
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	code, err := newInviteCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	invitation := domain.Invitation{
		ID:        s.genID.Generate(),
		OrgID:     req.OrgID,
		Email:     inviteeEmail,
		Role:      string(role),
		Code:      code,
		Status:    domain.StatusPending,
		InvitedBy: req.InviterID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, invitation); err != nil {
		s.log.Warn("creating invitation failed",
			zap.String("org_id", req.OrgID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.sendInviteMail(ctx, req.OrgID, &invitation)

	return &invitation, nil
}

func (s *service) List(ctx context.Context, orgID snowflake.ID) ([]domain.Invitation, error) {
	if orgID == 0 {
		return nil, authorization.ErrInvalidOrganization
	}
	return s.repo.ListByOrg(ctx, orgID)
}

// Accept redeems an invitation code for the authenticated user. Re-accepting
// an already redeemed invitation is a no-op success for the member it
// admitted; everyone else sees the code as unknown.
func (s *service) Accept(ctx context.Context, req domain.AcceptRequest) (*domain.AcceptResult, error) {
	if req.UserID == 0 {
		return nil, authorization.ErrUnauthenticated
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, domain.ErrInvitationNotFound
	}

	invitation, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, err
	}

	role, ok := orgdomain.ParseRole(invitation.Role)
	if !ok {
		role = orgdomain.RoleMember
	}
	result := &domain.AcceptResult{OrgID: invitation.OrgID, Role: role}

	isMember, err := s.orgRepo.IsMember(ctx, invitation.OrgID, req.UserID)
	if err != nil {
		return nil, err
	}
	if isMember {
		// Re-accept: make sure the row is closed out, then succeed.
		if invitation.Status == domain.StatusPending {
			if err := s.repo.MarkAccepted(ctx, invitation.ID, time.Now().UTC()); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
	if invitation.Status != domain.StatusPending {
		return nil, domain.ErrInvitationNotFound
	}

	if err := s.enforceMemberLimit(ctx, invitation.OrgID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rls.Supported(tx) {
			if err := rls.WithTenant(tx, int64(invitation.OrgID)); err != nil {
				return err
			}
		}

		txRepo := s.repo.WithTx(tx)
		txOrgRepo := s.orgRepo.WithTx(tx)

		if err := txOrgRepo.AddMember(ctx, orgdomain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     invitation.OrgID,
			UserID:    req.UserID,
			Role:      string(role),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := txRepo.MarkAccepted(ctx, invitation.ID, now); err != nil {
			return err
		}

		s.emitAccepted(ctx, tx, invitation, req.UserID)
		return nil
	})
	if err != nil {
		s.log.Warn("accepting invitation failed",
			zap.String("org_id", invitation.OrgID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return result, nil
}

func (s *service) enforceMemberLimit(ctx context.Context, orgID snowflake.ID) error {
	if s.plans == nil {
		return nil
	}
	org, err := s.orgRepo.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	plan := s.plans.Get().Lookup(org.Plan)
	if plan.MaxMembers <= 0 {
		return nil
	}
	count, err := s.orgRepo.CountMembers(ctx, orgID)
	if err != nil {
		return err
	}
	if count >= int64(plan.MaxMembers) {
		return domain.ErrMemberLimitReached
	}
	return nil
}

func (s *service) sendInviteMail(ctx context.Context, orgID snowflake.ID, invitation *domain.Invitation) {
	orgName := ""
	if org, err := s.orgRepo.GetOrganization(ctx, orgID); err == nil {
		orgName = org.Name
	}

	err := s.email.SendTemplate(ctx, []string{invitation.Email}, "invite_member", map[string]any{
		"org_name": orgName,
		"role":     invitation.Role,
		"code":     invitation.Code,
	})
	if err != nil {
		// Mail is best-effort; the code can still be shared out of band.
		s.log.Warn("sending invite mail failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}

func (s *service) emitAccepted(ctx context.Context, tx *gorm.DB, invitation *domain.Invitation, userID snowflake.ID) {
	if s.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"organization_id": invitation.OrgID.String(),
		"invitation_id":   invitation.ID.String(),
		"user_id":         userID.String(),
		"role":            invitation.Role,
	})
	if err != nil {
		return
	}
	if err := s.outbox.EnqueueTx(ctx, tx, invitation.OrgID, InvitationAcceptedTopic, payload); err != nil {
		s.log.Warn("emitting invitation.accepted failed",
			zap.String("org_id", invitation.OrgID.String()),
			zap.Error(err),
		)
	}
}

func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
