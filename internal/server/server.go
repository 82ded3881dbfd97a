package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/beacon/internal/audit"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	"github.com/smallbiznis/beacon/internal/auth"
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	"github.com/smallbiznis/beacon/internal/auth/session"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/cache"
	"github.com/smallbiznis/beacon/internal/cloudmetrics"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/dashboard"
	dashboarddomain "github.com/smallbiznis/beacon/internal/dashboard/domain"
	"github.com/smallbiznis/beacon/internal/event"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	"github.com/smallbiznis/beacon/internal/events"
	"github.com/smallbiznis/beacon/internal/invitation"
	invitationdomain "github.com/smallbiznis/beacon/internal/invitation/domain"
	"github.com/smallbiznis/beacon/internal/kpi"
	"github.com/smallbiznis/beacon/internal/observability"
	obsmiddleware "github.com/smallbiznis/beacon/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/beacon/internal/observability/metrics"
	obstracing "github.com/smallbiznis/beacon/internal/observability/tracing"
	"github.com/smallbiznis/beacon/internal/organization"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/internal/project"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/internal/providers/email"
	"github.com/smallbiznis/beacon/internal/providers/pdf"
	"github.com/smallbiznis/beacon/internal/ratelimit"
	"github.com/smallbiznis/beacon/internal/signup"
	signupdomain "github.com/smallbiznis/beacon/internal/signup/domain"
	"github.com/smallbiznis/beacon/internal/tenant"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module is the monolith composition: every feature module plus the full
// HTTP surface. The split binaries under apps/ assemble their own subsets.
var Module = fx.Module("http.server",
	config.Module,
	cloudmetrics.Module,
	authorization.Module,
	audit.Module,
	events.Module,
	auth.Module,
	signup.Module,
	organization.Module,
	invitation.Module,
	project.Module,
	event.Module,
	kpi.Module,
	dashboard.Module,
	tenant.Module,
	cache.Module,
	ratelimit.Module,
	email.Module,
	pdf.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerAllRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// classifyErrorForLog reuses the HTTP error mapping so request logs carry the
// same error taxonomy the response body does.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

// RunHTTP serves the engine on the configured address under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	authsvc       authdomain.Service
	sessions      *session.Manager
	signupsvc     signupdomain.Service
	guard         authorization.Guard
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	orgSvc        organizationdomain.Service
	invitationSvc invitationdomain.Service
	projectSvc    projectdomain.Service
	eventSvc      eventdomain.Service
	dashboardSvc  dashboarddomain.Service
	tenants       *tenant.Factory
	pdf           pdf.Provider
	ingestLimiter *ratelimit.IngestLimiter
	obsMetrics    *obsmetrics.Metrics
	apiMetrics    *telemetry.Metrics
}

// ServerParams lists everything a Server may use. Services are optional
// because the split binaries only load the modules behind the route groups
// they register; registering a group requires its modules.
type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	Authsvc       authdomain.Service         `optional:"true"`
	Sessions      *session.Manager           `optional:"true"`
	Signupsvc     signupdomain.Service       `optional:"true"`
	Guard         authorization.Guard        `optional:"true"`
	AuthzSvc      authorization.Service      `optional:"true"`
	AuditSvc      auditdomain.Service        `optional:"true"`
	OrgSvc        organizationdomain.Service `optional:"true"`
	InvitationSvc invitationdomain.Service   `optional:"true"`
	ProjectSvc    projectdomain.Service      `optional:"true"`
	EventSvc      eventdomain.Service        `optional:"true"`
	DashboardSvc  dashboarddomain.Service    `optional:"true"`
	Tenants       *tenant.Factory            `optional:"true"`
	PDF           pdf.Provider               `optional:"true"`
	IngestLimiter *ratelimit.IngestLimiter   `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics        `optional:"true"`
	APIMetrics    *telemetry.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		authsvc:       p.Authsvc,
		sessions:      p.Sessions,
		signupsvc:     p.Signupsvc,
		guard:         p.Guard,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		orgSvc:        p.OrgSvc,
		invitationSvc: p.InvitationSvc,
		projectSvc:    p.ProjectSvc,
		eventSvc:      p.EventSvc,
		dashboardSvc:  p.DashboardSvc,
		tenants:       p.Tenants,
		pdf:           p.PDF,
		ingestLimiter: p.IngestLimiter,
		obsMetrics:    p.ObsMetrics,
		apiMetrics:    p.APIMetrics,
	}
}

func registerAllRoutes(s *Server) {
	s.RegisterAuthRoutes()
	s.RegisterCollectRoutes()
	s.RegisterAdminRoutes()
	s.RegisterFallback()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterAuthRoutes wires the browser session surface: signup, login,
// session introspection, and the per-user organization routes.
func (s *Server) RegisterAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/signup", s.Signup)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.Me)
	auth.POST("/change-password", s.WebAuthRequired(), s.ChangePassword)
	auth.POST("/invitations/accept", s.WebAuthRequired(), s.AcceptInvitation)

	user := auth.Group("/user", s.WebAuthRequired())
	{
		user.GET("/orgs", s.ListUserOrgs)
		user.POST("/using/:orgId", s.UseOrg)
	}
}

// RegisterCollectRoutes wires the SDK-facing ingest surface. Authentication
// is the project API key alone; browser sessions never reach these routes.
func (s *Server) RegisterCollectRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/collect", s.ProjectKeyRequired(), s.CollectRateLimit(), s.CollectEvent)

	if s.cfg.Environment != "production" {
		api.POST("/test/cleanup", s.TestCleanup)
	}
}

// RegisterAdminRoutes wires the workspace console. Every route runs behind
// the session check and org resolution; role ranks gate each route and the
// casbin policies refine them per object and action.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.Use(s.WebAuthRequired())
	admin.Use(s.OrgContext())
	admin.Use(s.apiUsage())

	// A new workspace is created outside any org context.
	admin.POST("/orgs", s.CreateOrganization)

	admin.GET("/home", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin, organizationdomain.RoleMember), s.authorizeOrgAction(authorization.ObjectDashboard, authorization.ActionDashboardView), s.GetHomeDashboard)

	// -------- Organization --------
	admin.GET("/organization", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin, organizationdomain.RoleMember), s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganization)
	admin.GET("/members", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin), s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
	admin.PATCH("/members/:userId", s.RequireRole(organizationdomain.RoleOwner), s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberUpdateRole), s.UpdateMemberRole)
	admin.DELETE("/members/:userId", s.RequireRole(organizationdomain.RoleOwner), s.authorizeOrgAction(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMember)

	// -------- Invitations --------
	admin.GET("/invitations", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin), s.authorizeOrgAction(authorization.ObjectInvite, authorization.ActionInviteView), s.ListInvitations)
	admin.POST("/invitations", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin), s.authorizeOrgAction(authorization.ObjectInvite, authorization.ActionInviteCreate), s.InviteMember)

	// -------- Projects --------
	admin.GET("/projects", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin, organizationdomain.RoleMember), s.authorizeOrgAction(authorization.ObjectProject, authorization.ActionProjectView), s.ListProjects)
	admin.POST("/projects", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin), s.authorizeOrgAction(authorization.ObjectProject, authorization.ActionProjectCreate), s.CreateProject)
	admin.GET("/projects/:id", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin, organizationdomain.RoleMember), s.authorizeOrgAction(authorization.ObjectProject, authorization.ActionProjectView), s.GetProject)
	admin.POST("/projects/:id/deactivate", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin), s.authorizeOrgAction(authorization.ObjectProject, authorization.ActionProjectDeactivate), s.DeactivateProject)

	// -------- Events --------
	admin.GET("/events", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin, organizationdomain.RoleMember), s.authorizeOrgAction(authorization.ObjectEvent, authorization.ActionEventView), s.ListEvents)

	// -------- KPIs --------
	admin.GET("/kpis", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin, organizationdomain.RoleMember), s.authorizeOrgAction(authorization.ObjectKPI, authorization.ActionKPIView), s.ListKPISnapshots)

	// -------- Reports --------
	admin.GET("/reports/kpis.pdf", s.RequireRole(organizationdomain.RoleOwner, organizationdomain.RoleAdmin), s.authorizeOrgAction(authorization.ObjectReport, authorization.ActionReportExport), s.ExportKPIReport)

	admin.GET("/audit-logs", s.RequireRole(organizationdomain.RoleOwner), s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) RegisterFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{
			Type:    "not_found",
			Message: "not found",
		}})
	})
}
