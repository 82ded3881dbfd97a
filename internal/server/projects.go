package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/internal/tenant"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
}

func (s *Server) ListProjects(c *gin.Context) {
	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	projects, err := gw.ListProjects(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) GetProject(c *gin.Context) {
	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	projectID, ok := parsePathSnowflakeID(c, "id")
	if !ok {
		AbortWithError(c, projectdomain.ErrProjectNotFound)
		return
	}

	project, err := gw.GetProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, project)
}

// CreateProject mints a new project with a fresh API key. The raw key is
// returned in this response only; afterwards the server holds just its hash.
func (s *Server) CreateProject(c *gin.Context) {
	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := gw.CreateProject(c.Request.Context(), tenant.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Domain:      req.Domain,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditProjectChange(c, gw, created.Project.ID, "project.created", map[string]any{
		"name": created.Project.Name,
	})

	c.JSON(http.StatusOK, created)
}

func (s *Server) DeactivateProject(c *gin.Context) {
	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	projectID, ok := parsePathSnowflakeID(c, "id")
	if !ok {
		AbortWithError(c, projectdomain.ErrProjectNotFound)
		return
	}

	project, err := gw.DeactivateProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditProjectChange(c, gw, project.ID, "project.deactivated", nil)

	c.JSON(http.StatusOK, project)
}

func (s *Server) auditProjectChange(c *gin.Context, gw *tenant.Gateway, projectID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	orgID := gw.OrgID()
	actorID := gw.CallerID().String()
	targetID := projectID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &orgID, string(auditdomain.ActorTypeUser), &actorID, action, "project", &targetID, metadata)
}

// bindGateway resolves the caller and org for this request and returns a
// gateway scoped to that pair. It aborts with the mapped error on failure.
func (s *Server) bindGateway(c *gin.Context) (*tenant.Gateway, bool) {
	if s.tenants == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return nil, false
	}

	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}

	gw, err := s.tenants.Bind(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return gw, true
}
