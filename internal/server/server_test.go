package server

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	invitationdomain "github.com/smallbiznis/beacon/internal/invitation/domain"
	orgdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/internal/orgcontext"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/pkg/tenantctx"
)

type fakeGuard struct {
	role orgdomain.Role
	err  error

	calls        int
	lastCallerID snowflake.ID
	lastOrgID    snowflake.ID
	lastRequired []orgdomain.Role
}

func (f *fakeGuard) Authorize(ctx context.Context, callerID snowflake.ID, orgID snowflake.ID, required ...orgdomain.Role) (orgdomain.Role, error) {
	f.calls++
	f.lastCallerID = callerID
	f.lastOrgID = orgID
	f.lastRequired = required
	_ = ctx
	if f.err != nil {
		return "", f.err
	}
	return f.role, nil
}

type fakeAuthService struct {
	session *authdomain.Session
	user    *authdomain.User
	login   *authdomain.LoginResult

	authErr  error
	loginErr error

	logoutCalls      int
	updateOrgCalls   int
	lastSessionID    snowflake.ID
	lastActiveOrgID  *snowflake.ID
	changePassCalls  int
	lastNewPassword  string
	lastChangeUserID snowflake.ID
}

func (f *fakeAuthService) CreateUser(ctx context.Context, req authdomain.CreateUserRequest) (*authdomain.User, error) {
	_ = ctx
	return &authdomain.User{ID: snowflake.ID(200), Email: req.Email}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, req authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	_ = ctx
	_ = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.login, nil
}

func (f *fakeAuthService) Logout(ctx context.Context, rawToken string) error {
	f.logoutCalls++
	_ = ctx
	_ = rawToken
	return nil
}

func (f *fakeAuthService) Authenticate(ctx context.Context, rawToken string) (*authdomain.Session, error) {
	_ = ctx
	_ = rawToken
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.session, nil
}

func (f *fakeAuthService) UpdateSessionOrgContext(ctx context.Context, sessionID snowflake.ID, activeOrgID *snowflake.ID) error {
	f.updateOrgCalls++
	f.lastSessionID = sessionID
	f.lastActiveOrgID = activeOrgID
	_ = ctx
	return nil
}

func (f *fakeAuthService) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	f.changePassCalls++
	f.lastChangeUserID = userID
	f.lastNewPassword = newPassword
	_ = ctx
	return nil
}

func (f *fakeAuthService) CurrentUser(ctx context.Context, userID snowflake.ID) (*authdomain.User, error) {
	_ = ctx
	_ = userID
	if f.user == nil {
		return nil, authdomain.ErrUserNotFound
	}
	return f.user, nil
}

type fakeOrgService struct {
	org  *orgdomain.OrganizationResponse
	orgs []orgdomain.OrganizationListResponseItem

	getByIDCalls int
	lastGetID    string
}

func (f *fakeOrgService) Create(ctx context.Context, userID snowflake.ID, req orgdomain.CreateOrganizationRequest) (*orgdomain.OrganizationResponse, error) {
	_ = ctx
	_ = userID
	_ = req
	return f.org, nil
}

func (f *fakeOrgService) GetByID(ctx context.Context, id string) (*orgdomain.OrganizationResponse, error) {
	f.getByIDCalls++
	f.lastGetID = id
	_ = ctx
	return f.org, nil
}

func (f *fakeOrgService) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]orgdomain.OrganizationListResponseItem, error) {
	_ = ctx
	_ = userID
	return f.orgs, nil
}

func (f *fakeOrgService) EnsurePersonalOrg(ctx context.Context, userID snowflake.ID, displayName string) (*orgdomain.Organization, error) {
	_ = ctx
	_ = userID
	_ = displayName
	return nil, nil
}

func (f *fakeOrgService) ListMembers(ctx context.Context, orgID snowflake.ID) ([]orgdomain.MemberResponse, error) {
	_ = ctx
	_ = orgID
	return nil, nil
}

func (f *fakeOrgService) UpdateMemberRole(ctx context.Context, orgID snowflake.ID, userID snowflake.ID, role orgdomain.Role) error {
	_ = ctx
	_ = orgID
	_ = userID
	_ = role
	return nil
}

func (f *fakeOrgService) RemoveMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) error {
	_ = ctx
	_ = orgID
	_ = userID
	return nil
}

type fakeProjectService struct {
	project *projectdomain.Project
	err     error

	calls   int
	lastKey string
}

func (f *fakeProjectService) ResolveByKey(ctx context.Context, rawKey string) (*projectdomain.Project, error) {
	f.calls++
	f.lastKey = rawKey
	_ = ctx
	if f.err != nil {
		return nil, f.err
	}
	return f.project, nil
}

type fakeEventService struct {
	resp *eventdomain.IngestResponse
	err  error

	calls    int
	lastReq  eventdomain.CreateIngestRequest
	seenOrg  snowflake.ID
	seenProj int64
}

func (f *fakeEventService) Ingest(ctx context.Context, req eventdomain.CreateIngestRequest) (*eventdomain.IngestResponse, error) {
	f.calls++
	f.lastReq = req
	if orgID, ok := orgcontext.OrgIDFromContext(ctx); ok {
		f.seenOrg = orgID
	}
	if projectID, ok := tenantctx.ProjectID(ctx); ok {
		f.seenProj = projectID
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeAuditService struct {
	entries []string
}

func (f *fakeAuditService) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	f.entries = append(f.entries, action)
	_ = ctx
	_ = orgID
	_ = actorType
	_ = actorID
	_ = targetType
	_ = targetID
	_ = metadata
	return nil
}

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	_ = ctx
	_ = req
	return auditdomain.ListAuditLogResponse{}, nil
}

func (f *fakeAuditService) has(action string) bool {
	for _, entry := range f.entries {
		if entry == action {
			return true
		}
	}
	return false
}

type fakeInvitationService struct {
	invitation *invitationdomain.Invitation
	accept     *invitationdomain.AcceptResult
	err        error

	lastInvite invitationdomain.InviteRequest
	lastAccept invitationdomain.AcceptRequest
}

func (f *fakeInvitationService) Invite(ctx context.Context, req invitationdomain.InviteRequest) (*invitationdomain.Invitation, error) {
	f.lastInvite = req
	_ = ctx
	if f.err != nil {
		return nil, f.err
	}
	return f.invitation, nil
}

func (f *fakeInvitationService) List(ctx context.Context, orgID snowflake.ID) ([]invitationdomain.Invitation, error) {
	_ = ctx
	_ = orgID
	if f.invitation == nil {
		return nil, nil
	}
	return []invitationdomain.Invitation{*f.invitation}, nil
}

func (f *fakeInvitationService) Accept(ctx context.Context, req invitationdomain.AcceptRequest) (*invitationdomain.AcceptResult, error) {
	f.lastAccept = req
	_ = ctx
	if f.err != nil {
		return nil, f.err
	}
	return f.accept, nil
}

func testSession(userID snowflake.ID, activeOrgID *snowflake.ID) *authdomain.Session {
	return &authdomain.Session{
		ID:          snowflake.ID(900),
		UserID:      userID,
		ActiveOrgID: activeOrgID,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}
