package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/events"
	eventsdomain "github.com/smallbiznis/beacon/internal/events/domain"
	"github.com/smallbiznis/beacon/internal/invitation/domain"
	invitationrepository "github.com/smallbiznis/beacon/internal/invitation/repository"
	orgdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/beacon/internal/organization/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sentMail struct {
	to       []string
	template string
	data     map[string]any
}

type fakeEmail struct {
	sent []sentMail
}

func (f *fakeEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (f *fakeEmail) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	f.sent = append(f.sent, sentMail{to: to, template: templateName, data: data})
	return nil
}

type invitationFixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   domain.Service
	email *fakeEmail

	orgID    snowflake.ID
	ownerID  snowflake.ID
	adminID  snowflake.ID
	memberID snowflake.ID
}

func newInvitationFixture(t *testing.T) *invitationFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:invitation_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&orgdomain.Organization{},
		&orgdomain.OrganizationMember{},
		&domain.Invitation{},
		&eventsdomain.DomainEvent{},
	)
	assert.NoError(t, err)

	node, err := snowflake.NewNode(8)
	assert.NoError(t, err)

	plans, err := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	assert.NoError(t, err)

	mailer := &fakeEmail{}
	svc := NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    invitationrepository.NewRepository(db),
		OrgRepo: organizationrepository.NewRepository(db),
		Email:   mailer,
		Outbox:  events.NewOutbox(db, node),
		Plans:   plans,
	})

	f := &invitationFixture{
		db:       db,
		node:     node,
		svc:      svc,
		email:    mailer,
		orgID:    node.Generate(),
		ownerID:  node.Generate(),
		adminID:  node.Generate(),
		memberID: node.Generate(),
	}

	now := time.Now().UTC()
	err = db.Create(&orgdomain.Organization{
		ID:        f.orgID,
		Name:      "Acme",
		Slug:      "acme",
		Plan:      "free",
		CreatedAt: now,
		UpdatedAt: now,
	}).Error
	assert.NoError(t, err)

	for _, m := range []struct {
		userID snowflake.ID
		role   orgdomain.Role
	}{
		{f.ownerID, orgdomain.RoleOwner},
		{f.adminID, orgdomain.RoleAdmin},
		{f.memberID, orgdomain.RoleMember},
	} {
		err = db.Create(&orgdomain.OrganizationMember{
			ID:        node.Generate(),
			OrgID:     f.orgID,
			UserID:    m.userID,
			Role:      string(m.role),
			CreatedAt: now,
		}).Error
		assert.NoError(t, err)
	}

	return f
}

func TestInviteRoleCeiling(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	invitation, err := f.svc.Invite(ctx, domain.InviteRequest{
		OrgID:     f.orgID,
		InviterID: f.adminID,
		Email:     "new.member@example.com",
		Role:      "member",
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusPending, invitation.Status)
	assert.Len(t, invitation.Code, 32)

	t.Run("admin cannot grant owner", func(t *testing.T) {
		_, err := f.svc.Invite(ctx, domain.InviteRequest{
			OrgID:     f.orgID,
			InviterID: f.adminID,
			Email:     "boss@example.com",
			Role:      "owner",
		})
		assert.ErrorIs(t, err, authorization.ErrInsufficientRole)
	})

	t.Run("owner can grant owner", func(t *testing.T) {
		_, err := f.svc.Invite(ctx, domain.InviteRequest{
			OrgID:     f.orgID,
			InviterID: f.ownerID,
			Email:     "boss@example.com",
			Role:      "owner",
		})
		assert.NoError(t, err)
	})

	t.Run("plain member cannot invite", func(t *testing.T) {
		_, err := f.svc.Invite(ctx, domain.InviteRequest{
			OrgID:     f.orgID,
			InviterID: f.memberID,
			Email:     "friend@example.com",
			Role:      "member",
		})
		assert.ErrorIs(t, err, authorization.ErrInsufficientRole)
	})

	t.Run("outsider cannot invite", func(t *testing.T) {
		_, err := f.svc.Invite(ctx, domain.InviteRequest{
			OrgID:     f.orgID,
			InviterID: f.node.Generate(),
			Email:     "friend@example.com",
		})
		assert.ErrorIs(t, err, authorization.ErrNotAMember)
	})

	t.Run("malformed email rejected", func(t *testing.T) {
		_, err := f.svc.Invite(ctx, domain.InviteRequest{
			OrgID:     f.orgID,
			InviterID: f.ownerID,
			Email:     "not-an-email",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		_, err := f.svc.Invite(ctx, domain.InviteRequest{
			OrgID:     f.orgID,
			InviterID: f.ownerID,
			Email:     "someone@example.com",
			Role:      "superuser",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRole)
	})
}

func TestInviteResendsPendingInvitation(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	first, err := f.svc.Invite(ctx, domain.InviteRequest{
		OrgID:     f.orgID,
		InviterID: f.ownerID,
		Email:     "New.Member@Example.com",
	})
	assert.NoError(t, err)
	assert.Equal(t, "new.member@example.com", first.Email)

	second, err := f.svc.Invite(ctx, domain.InviteRequest{
		OrgID:     f.orgID,
		InviterID: f.ownerID,
		Email:     "new.member@example.com",
	})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Code, second.Code)

	var count int64
	err = f.db.Model(&domain.Invitation{}).Where("org_id = ?", f.orgID).Count(&count).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	if assert.Len(t, f.email.sent, 2) {
		assert.Equal(t, []string{"new.member@example.com"}, f.email.sent[0].to)
		assert.Equal(t, "invite_member", f.email.sent[0].template)
		assert.Equal(t, first.Code, f.email.sent[0].data["code"])
		assert.Equal(t, "Acme", f.email.sent[0].data["org_name"])
	}
}

func TestAcceptCreatesMembership(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	invitation, err := f.svc.Invite(ctx, domain.InviteRequest{
		OrgID:     f.orgID,
		InviterID: f.ownerID,
		Email:     "new.admin@example.com",
		Role:      "admin",
	})
	assert.NoError(t, err)

	newUserID := f.node.Generate()
	result, err := f.svc.Accept(ctx, domain.AcceptRequest{
		Code:   invitation.Code,
		UserID: newUserID,
	})
	assert.NoError(t, err)
	assert.Equal(t, f.orgID, result.OrgID)
	assert.Equal(t, orgdomain.RoleAdmin, result.Role)

	var member orgdomain.OrganizationMember
	err = f.db.First(&member, "org_id = ? AND user_id = ?", f.orgID, newUserID).Error
	assert.NoError(t, err)
	assert.Equal(t, "admin", member.Role)

	var stored domain.Invitation
	err = f.db.First(&stored, "id = ?", invitation.ID).Error
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, stored.Status)
	assert.NotNil(t, stored.AcceptedAt)

	var outboxCount int64
	err = f.db.Model(&eventsdomain.DomainEvent{}).
		Where("org_id = ? AND topic = ?", f.orgID, InvitationAcceptedTopic).
		Count(&outboxCount).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(1), outboxCount)

	t.Run("re-accept by the same user succeeds", func(t *testing.T) {
		again, err := f.svc.Accept(ctx, domain.AcceptRequest{
			Code:   invitation.Code,
			UserID: newUserID,
		})
		assert.NoError(t, err)
		assert.Equal(t, f.orgID, again.OrgID)

		var members int64
		err = f.db.Model(&orgdomain.OrganizationMember{}).
			Where("org_id = ? AND user_id = ?", f.orgID, newUserID).
			Count(&members).Error
		assert.NoError(t, err)
		assert.Equal(t, int64(1), members)
	})

	t.Run("redeemed code is unknown to everyone else", func(t *testing.T) {
		_, err := f.svc.Accept(ctx, domain.AcceptRequest{
			Code:   invitation.Code,
			UserID: f.node.Generate(),
		})
		assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	})
}

func TestAcceptUnknownCode(t *testing.T) {
	f := newInvitationFixture(t)

	_, err := f.svc.Accept(context.Background(), domain.AcceptRequest{
		Code:   "deadbeefdeadbeefdeadbeefdeadbeef",
		UserID: f.node.Generate(),
	})
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
}

func TestAcceptEnforcesMemberLimit(t *testing.T) {
	f := newInvitationFixture(t)
	ctx := context.Background()

	// The free plan seats five; the fixture already has three members.
	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		err := f.db.Create(&orgdomain.OrganizationMember{
			ID:        f.node.Generate(),
			OrgID:     f.orgID,
			UserID:    f.node.Generate(),
			Role:      string(orgdomain.RoleMember),
			CreatedAt: now,
		}).Error
		assert.NoError(t, err)
	}

	invitation, err := f.svc.Invite(ctx, domain.InviteRequest{
		OrgID:     f.orgID,
		InviterID: f.ownerID,
		Email:     "sixth@example.com",
	})
	assert.NoError(t, err)

	_, err = f.svc.Accept(ctx, domain.AcceptRequest{
		Code:   invitation.Code,
		UserID: f.node.Generate(),
	})
	assert.ErrorIs(t, err, domain.ErrMemberLimitReached)
}
