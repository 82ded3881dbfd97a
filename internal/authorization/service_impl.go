package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectOrganization = "organization"
	ObjectMember       = "member"
	ObjectProject      = "project"
	ObjectEvent        = "event"
	ObjectKPI          = "kpi"
	ObjectDashboard    = "dashboard"
	ObjectInvite       = "invite"
	ObjectAuditLog     = "audit_log"
	ObjectReport       = "report"
)

const (
	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"

	ActionMemberView       = "member.view"
	ActionMemberUpdateRole = "member.update_role"
	ActionMemberRemove     = "member.remove"

	ActionProjectView       = "project.view"
	ActionProjectCreate     = "project.create"
	ActionProjectUpdate     = "project.update"
	ActionProjectDeactivate = "project.deactivate"

	ActionEventView   = "event.view"
	ActionEventIngest = "event.ingest"

	ActionKPIView   = "kpi.view"
	ActionKPIRollup = "kpi.rollup"

	ActionDashboardView = "dashboard.view"

	ActionInviteView   = "invite.view"
	ActionInviteCreate = "invite.create"
	ActionInviteRevoke = "invite.revoke"

	ActionAuditLogView = "audit_log.view"

	ActionReportExport = "report.export"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	orgID = strings.TrimSpace(orgID)
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)

	switch {
	case actor == "":
		return ErrInvalidActor
	case orgID == "":
		return ErrInvalidOrganization
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	act, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.audit(ctx, "authorization.denied", act, orgID, object, action)
		return err
	}

	domain := "org:" + orgID
	if err := s.ensureGrouping(act.subject, act.role, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(act.subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.audit(ctx, "authorization.denied", act, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.audit(ctx, "authorization.granted", act, orgID, object, action)
	}
	return nil
}

// resolvedActor is the enforcer-facing identity of a caller. On resolution
// errors the actorType and actorID fields still carry whatever was parsed,
// so the denial audit entry names the caller when it can.
type resolvedActor struct {
	subject   string
	role      string
	actorType string
	actorID   *string
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (resolvedActor, error) {
	switch {
	case actor == "system":
		return resolvedActor{subject: actor, role: "role:system", actorType: "system"}, nil

	case strings.HasPrefix(actor, "api_key:"):
		// Project API keys act with the system role
		apiKeyID, err := snowflake.ParseString(strings.TrimPrefix(actor, "api_key:"))
		if err != nil || apiKeyID == 0 {
			return resolvedActor{}, ErrInvalidActor
		}
		apiKeyIDStr := apiKeyID.String()
		return resolvedActor{subject: actor, role: "role:system", actorType: "api_key", actorID: &apiKeyIDStr}, nil

	case strings.HasPrefix(actor, "user:"):
		userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
		if err != nil || userID == 0 {
			return resolvedActor{}, ErrInvalidActor
		}
		userIDStr := userID.String()
		act := resolvedActor{subject: actor, actorType: "user", actorID: &userIDStr}

		parsedOrgID, err := snowflake.ParseString(orgID)
		if err != nil || parsedOrgID == 0 {
			return act, ErrInvalidOrganization
		}
		role, err := s.roleForUser(ctx, parsedOrgID, userID)
		if err != nil {
			return act, err
		}
		act.role = "role:" + strings.ToLower(role)
		return act, nil
	}

	return resolvedActor{}, ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE org_id = ? AND user_id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrNotAMember
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject and org domain.
// Role changes land in organization_members first; the stale casbin link
// is dropped on the next authorization touch.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		_, _ = s.enforcer.RemoveFilteredGroupingPolicy(0, subject, rule[1], domain)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if !has {
		_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	}
	return err
}

func (s *ServiceImpl) audit(ctx context.Context, auditAction string, act resolvedActor, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, act.actorType, act.actorID, auditAction, "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   act.actorType,
		"org_id":  orgID,
		"subject": actorSubject(act.actorType, act.actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return "user:" + strings.TrimSpace(*actorID)
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionMemberUpdateRole, ActionMemberRemove, ActionInviteRevoke, ActionProjectDeactivate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only)
		{"role:member", ObjectOrganization, ActionOrganizationView},
		{"role:member", ObjectProject, ActionProjectView},
		{"role:member", ObjectEvent, ActionEventView},
		{"role:member", ObjectKPI, ActionKPIView},
		{"role:member", ObjectDashboard, ActionDashboardView},

		// Admin permissions
		{"role:admin", ObjectOrganization, ActionOrganizationView},
		{"role:admin", ObjectProject, ActionProjectView},
		{"role:admin", ObjectProject, ActionProjectCreate},
		{"role:admin", ObjectProject, ActionProjectUpdate},
		{"role:admin", ObjectProject, ActionProjectDeactivate},
		{"role:admin", ObjectEvent, ActionEventView},
		{"role:admin", ObjectKPI, ActionKPIView},
		{"role:admin", ObjectDashboard, ActionDashboardView},
		{"role:admin", ObjectMember, ActionMemberView},
		{"role:admin", ObjectInvite, ActionInviteView},
		{"role:admin", ObjectInvite, ActionInviteCreate},
		{"role:admin", ObjectReport, ActionReportExport},

		// Owner permissions
		{"role:owner", ObjectOrganization, ActionOrganizationView},
		{"role:owner", ObjectOrganization, ActionOrganizationUpdate},
		{"role:owner", ObjectProject, ActionProjectView},
		{"role:owner", ObjectProject, ActionProjectCreate},
		{"role:owner", ObjectProject, ActionProjectUpdate},
		{"role:owner", ObjectProject, ActionProjectDeactivate},
		{"role:owner", ObjectEvent, ActionEventView},
		{"role:owner", ObjectKPI, ActionKPIView},
		{"role:owner", ObjectDashboard, ActionDashboardView},
		{"role:owner", ObjectMember, ActionMemberView},
		{"role:owner", ObjectMember, ActionMemberUpdateRole},
		{"role:owner", ObjectMember, ActionMemberRemove},
		{"role:owner", ObjectInvite, ActionInviteView},
		{"role:owner", ObjectInvite, ActionInviteCreate},
		{"role:owner", ObjectInvite, ActionInviteRevoke},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
		{"role:owner", ObjectReport, ActionReportExport},

		// System permissions (for automated processes and API keys)
		{"role:system", ObjectProject, ActionProjectView},
		{"role:system", ObjectEvent, ActionEventView},
		{"role:system", ObjectEvent, ActionEventIngest},
		{"role:system", ObjectKPI, ActionKPIView},
		{"role:system", ObjectKPI, ActionKPIRollup},
	}

	// AddPolicy is a no-op for rules that already exist, so reseeding on
	// every boot only fills in gaps.
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
