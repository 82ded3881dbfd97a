package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	"github.com/smallbiznis/beacon/internal/auth/repository"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/events"
	eventsdomain "github.com/smallbiznis/beacon/internal/events/domain"
	orgdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	organizationevent "github.com/smallbiznis/beacon/internal/organization/event"
	organizationrepository "github.com/smallbiznis/beacon/internal/organization/repository"
	organizationservice "github.com/smallbiznis/beacon/internal/organization/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authFixture struct {
	db  *gorm.DB
	svc authdomain.Service
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&authdomain.User{},
		&authdomain.Session{},
		&orgdomain.Organization{},
		&orgdomain.OrganizationMember{},
		&eventsdomain.DomainEvent{},
	)
	assert.NoError(t, err)

	node, err := snowflake.NewNode(5)
	assert.NoError(t, err)

	plans, err := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	assert.NoError(t, err)

	log := zap.NewNop()
	orgs := organizationservice.NewService(organizationservice.Params{
		DB:        db,
		Log:       log,
		Repo:      organizationrepository.NewRepository(db),
		GenID:     node,
		Publisher: organizationevent.NewOutboxPublisher(events.NewOutbox(db, node)),
		Plans:     plans,
	})

	repo, sessionRepo := repository.New(db)
	svc := New(Params{
		Log:         log,
		Repo:        repo,
		SessionRepo: sessionRepo,
		GenID:       node,
		Orgs:        orgs,
	})

	return &authFixture{db: db, svc: svc}
}

func (f *authFixture) createUser(t *testing.T, email, pass, name string) *authdomain.User {
	t.Helper()
	user, err := f.svc.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:       email,
		Password:    pass,
		DisplayName: name,
	})
	assert.NoError(t, err)
	assert.NotNil(t, user)
	return user
}

func TestCreateUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "alice@example.com", "correct-password", "Alice")
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "Alice", user.DisplayName)
	if assert.NotNil(t, user.PasswordHash) {
		assert.NotContains(t, *user.PasswordHash, "correct-password")
	}

	t.Run("display name falls back to the email local part", func(t *testing.T) {
		user := f.createUser(t, "bob.builder@example.com", "strong-password", "")
		assert.Equal(t, "bob.builder", user.DisplayName)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, authdomain.CreateUserRequest{
			Email:    "Alice@Example.com",
			Password: "another-password",
		})
		assert.ErrorIs(t, err, authdomain.ErrUserExists)
	})

	t.Run("short password is rejected", func(t *testing.T) {
		_, err := f.svc.CreateUser(ctx, authdomain.CreateUserRequest{
			Email:    "short@example.com",
			Password: "short",
		})
		assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
	})
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.createUser(t, "alice@example.com", "correct-password", "Alice")

	_, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-password",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestLoginBootstrapsPersonalWorkspace(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "alice@example.com", "correct-password", "Alice")

	result, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	assert.NoError(t, err)
	assert.Len(t, result.RawToken, 43)
	assert.Equal(t, user.ID, result.UserID)

	var session authdomain.Session
	err = f.db.First(&session, "id = ?", result.SessionID).Error
	assert.NoError(t, err)
	assert.NotNil(t, session.ActiveOrgID)

	var org orgdomain.Organization
	err = f.db.First(&org, "id = ?", session.ActiveOrgID).Error
	assert.NoError(t, err)
	assert.Equal(t, "Alice", org.Name)
	assert.True(t, org.IsPersonal)
	assert.Equal(t, config.DefaultPlanCode, org.Plan)

	var member orgdomain.OrganizationMember
	err = f.db.First(&member, "org_id = ? AND user_id = ?", org.ID, user.ID).Error
	assert.NoError(t, err)
	assert.Equal(t, string(orgdomain.RoleOwner), member.Role)

	var outboxCount int64
	err = f.db.Model(&eventsdomain.DomainEvent{}).
		Where("org_id = ? AND topic = ?", org.ID, organizationevent.OrganizationCreatedTopic).
		Count(&outboxCount).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(1), outboxCount)

	t.Run("second login reuses the workspace", func(t *testing.T) {
		again, err := f.svc.Login(ctx, authdomain.LoginRequest{
			Email:    "alice@example.com",
			Password: "correct-password",
		})
		assert.NoError(t, err)

		var second authdomain.Session
		err = f.db.First(&second, "id = ?", again.SessionID).Error
		assert.NoError(t, err)
		if assert.NotNil(t, second.ActiveOrgID) {
			assert.Equal(t, org.ID, *second.ActiveOrgID)
		}

		var orgCount int64
		err = f.db.Model(&orgdomain.Organization{}).Count(&orgCount).Error
		assert.NoError(t, err)
		assert.Equal(t, int64(1), orgCount)
	})
}

func TestSessionLifecycle(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.createUser(t, "alice@example.com", "correct-password", "Alice")
	result, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	assert.NoError(t, err)

	session, err := f.svc.Authenticate(ctx, result.RawToken)
	assert.NoError(t, err)
	assert.Equal(t, result.SessionID, session.ID)
	assert.NotEqual(t, result.RawToken, session.SessionTokenHash)

	t.Run("unknown token", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, "not-a-real-token")
		assert.ErrorIs(t, err, authdomain.ErrInvalidSession)
	})

	t.Run("expired session", func(t *testing.T) {
		err := f.db.Model(&authdomain.Session{}).
			Where("id = ?", result.SessionID).
			Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error
		assert.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, result.RawToken)
		assert.ErrorIs(t, err, authdomain.ErrSessionExpired)

		err = f.db.Model(&authdomain.Session{}).
			Where("id = ?", result.SessionID).
			Update("expires_at", time.Now().UTC().Add(time.Hour)).Error
		assert.NoError(t, err)
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		err := f.svc.Logout(ctx, result.RawToken)
		assert.NoError(t, err)

		_, err = f.svc.Authenticate(ctx, result.RawToken)
		assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
	})
}

func TestUpdateSessionOrgContext(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.createUser(t, "alice@example.com", "correct-password", "Alice")
	result, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	assert.NoError(t, err)

	next := snowflake.ID(424242)
	err = f.svc.UpdateSessionOrgContext(ctx, result.SessionID, &next)
	assert.NoError(t, err)

	var session authdomain.Session
	err = f.db.First(&session, "id = ?", result.SessionID).Error
	assert.NoError(t, err)
	if assert.NotNil(t, session.ActiveOrgID) {
		assert.Equal(t, next, *session.ActiveOrgID)
	}

	err = f.svc.UpdateSessionOrgContext(ctx, snowflake.ID(1), &next)
	assert.ErrorIs(t, err, authdomain.ErrSessionNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user := f.createUser(t, "alice@example.com", "correct-password", "Alice")

	err := f.svc.ChangePassword(ctx, user.ID, "rotated-password")
	assert.NoError(t, err)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	result, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "rotated-password",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, result.RawToken)
}
