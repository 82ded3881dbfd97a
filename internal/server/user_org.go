package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
)

type useOrgResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Role string `json:"role"`
}

func (s *Server) ListUserOrgs(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgs, err := s.orgSvc.ListOrganizationsByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orgs": orgs})
}

// UseOrg switches the session's active organization. Membership is
// re-verified on every switch; holding a session for one org grants nothing
// in another.
func (s *Server) UseOrg(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	rawOrgID := strings.TrimSpace(c.Param("orgId"))
	orgID, err := snowflake.ParseString(rawOrgID)
	if err != nil || orgID <= 0 {
		AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid org id"))
		return
	}

	role, err := s.guard.Authorize(c.Request.Context(), session.UserID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.orgSvc.GetByID(c.Request.Context(), orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.authsvc.UpdateSessionOrgContext(c.Request.Context(), session.ID, &orgID); err != nil {
		AbortWithError(c, err)
		return
	}
	session.ActiveOrgID = &orgID

	if s.auditSvc != nil {
		userID := session.UserID.String()
		targetID := orgID.String()
		_ = s.auditSvc.AuditLog(c.Request.Context(), &orgID, string(auditdomain.ActorTypeUser), &userID, "org.switched", "organization", &targetID, nil)
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrgSwitch(c.Request.Context())
	}

	c.JSON(http.StatusOK, useOrgResponse{
		ID:   org.ID,
		Name: org.Name,
		Slug: org.Slug,
		Role: string(role),
	})
}
