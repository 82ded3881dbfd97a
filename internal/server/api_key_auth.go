package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/beacon/internal/audit/domain"
	auditcontext "github.com/smallbiznis/beacon/internal/auditcontext"
	"github.com/smallbiznis/beacon/internal/orgcontext"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/pkg/tenantctx"
)

const (
	contextAuthTypeKey  = "auth_type"
	contextOrgIDKey     = "org_id"
	contextProjectIDKey = "project_key_project_id"
)

// ProjectKeyRequired authenticates collect requests with a project API key.
// Organization identity derives from the key alone; requests that also carry
// an org hint are rejected so a key can never be pointed at another tenant.
func (s *Server) ProjectKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if requestHasOrgID(c) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if s.projectSvc == nil {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		project, err := s.projectSvc.ResolveByKey(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, projectdomain.ErrProjectNotFound) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, contextAuthTypeKey, string(ActorAPIKey))
		ctx = context.WithValue(ctx, contextOrgIDKey, int64(project.OrgID))
		ctx = context.WithValue(ctx, contextProjectIDKey, int64(project.ID))
		ctx = orgcontext.WithOrgID(ctx, int64(project.OrgID))
		ctx = tenantctx.WithTenantID(ctx, int64(project.OrgID))
		ctx = tenantctx.WithProjectID(ctx, int64(project.ID))
		ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeAPIKey), project.ID.String())

		c.Request = c.Request.WithContext(ctx)
		c.Set("project_id", project.ID.String())
		c.Next()
	}
}

func requestHasOrgID(c *gin.Context) bool {
	if strings.TrimSpace(c.GetHeader(HeaderOrg)) != "" {
		return true
	}
	if value, ok := c.GetQuery("org_id"); ok && strings.TrimSpace(value) != "" {
		return true
	}
	if value, ok := c.GetQuery("orgId"); ok && strings.TrimSpace(value) != "" {
		return true
	}
	return false
}
