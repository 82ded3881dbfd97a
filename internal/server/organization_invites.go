package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	"github.com/smallbiznis/beacon/internal/audit/masking"
	invitationdomain "github.com/smallbiznis/beacon/internal/invitation/domain"
)

type inviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type acceptInvitationRequest struct {
	Code string `json:"code"`
}

// InviteMember offers a seat in the active organization to an email address.
// The invitation service enforces the role ceiling and member limits.
func (s *Server) InviteMember(c *gin.Context) {
	if s.invitationSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req inviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invitation, err := s.invitationSvc.Invite(c.Request.Context(), invitationdomain.InviteRequest{
		OrgID:     orgID,
		InviterID: userID,
		Email:     req.Email,
		Role:      req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditInvitation(c, orgID, invitation.ID, "invite.created", map[string]any{
		"email": masking.MaskEmail(invitation.Email),
		"role":  invitation.Role,
	})

	c.JSON(http.StatusOK, invitation)
}

func (s *Server) ListInvitations(c *gin.Context) {
	if s.invitationSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	orgID, err := s.orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invitations, err := s.invitationSvc.List(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": invitations})
}

// AcceptInvitation redeems an invite code for the authenticated user. The
// code alone picks the organization, so no org context is required here.
func (s *Server) AcceptInvitation(c *gin.Context) {
	if s.invitationSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	userID, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Code == "" {
		AbortWithError(c, newValidationError("code", "required", "invitation code is required"))
		return
	}

	result, err := s.invitationSvc.Accept(c.Request.Context(), invitationdomain.AcceptRequest{
		Code:   req.Code,
		UserID: userID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditInvitation(c, result.OrgID, userID, "invite.accepted", map[string]any{
		"role": string(result.Role),
	})

	c.JSON(http.StatusOK, result)
}

func (s *Server) auditInvitation(c *gin.Context, orgID, targetID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	var actorID *string
	if userID, ok := s.userIDFromSession(c); ok {
		value := userID.String()
		actorID = &value
	}
	target := targetID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), &orgID, string(auditdomain.ActorTypeUser), actorID, action, "invitation", &target, metadata)
}
