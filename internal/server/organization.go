package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type updateMemberRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.orgSvc.Create(c.Request.Context(), userID, organizationdomain.CreateOrganizationRequest{
		Name: strings.TrimSpace(req.Name),
		Plan: strings.TrimSpace(req.Plan),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetOrganization(c *gin.Context) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orgSvc.GetByID(c.Request.Context(), orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListMembers(c *gin.Context) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	members, err := s.orgSvc.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) UpdateMemberRole(c *gin.Context) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	memberID, err := snowflake.ParseString(strings.TrimSpace(c.Param("userId")))
	if err != nil || memberID <= 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user id"))
		return
	}

	var req updateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	role, ok := organizationdomain.ParseRole(req.Role)
	if !ok {
		AbortWithError(c, organizationdomain.ErrInvalidRole)
		return
	}

	if err := s.orgSvc.UpdateMemberRole(c.Request.Context(), orgID, memberID, role); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditMemberChange(c, orgID, memberID, "member.role_updated", map[string]any{"role": string(role)})
	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveMember(c *gin.Context) {
	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	memberID, err := snowflake.ParseString(strings.TrimSpace(c.Param("userId")))
	if err != nil || memberID <= 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user", "invalid user id"))
		return
	}

	if err := s.orgSvc.RemoveMember(c.Request.Context(), orgID, memberID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditMemberChange(c, orgID, memberID, "member.removed", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) auditMemberChange(c *gin.Context, orgID, memberID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if userID, ok := s.userIDFromSession(c); ok {
		value := userID.String()
		actorID = &value
	}
	targetID := memberID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &orgID, string(auditdomain.ActorTypeUser), actorID, action, "member", &targetID, metadata)
}

func (s *Server) userIDFromSession(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	raw, ok := value.(string)
	if !ok {
		return 0, false
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return userID, true
}
