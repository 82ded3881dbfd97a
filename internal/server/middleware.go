package server

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditcontext "github.com/smallbiznis/beacon/internal/auditcontext"
	authdomain "github.com/smallbiznis/beacon/internal/auth/domain"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	"github.com/smallbiznis/beacon/internal/orgcontext"
)

const (
	HeaderOrg = "X-Org-ID"

	contextUserIDKey  = "user_id"
	contextSessionKey = "auth_session"
	contextRoleKey    = "org_role"
)

// WebAuthRequired authenticates the browser session cookie. The session row
// and user id are stored on the gin context for downstream handlers.
func (s *Server) WebAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, session.UserID.String())
		c.Set(contextSessionKey, session)

		ctx := auditcontext.WithActor(c.Request.Context(), "user", session.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OrgContext resolves the organization a request acts on. Explicit request
// sources win; without one the session's active org fills in. Resolution
// stamps the context only — routes that require tenant scope reject on their
// own when nothing resolved.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := extractOrgID(c)
		if !ok {
			if session := sessionFromContext(c); session != nil && session.ActiveOrgID != nil {
				orgID = *session.ActiveOrgID
				ok = orgID > 0
			}
		}

		if ok {
			ctx := orgcontext.WithOrgID(c.Request.Context(), int64(orgID))
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// apiUsage records method, status, and tenant for each console request. The
// shared HTTP metrics omit the tenant label; this counter carries it for
// per-workspace usage reporting.
func (s *Server) apiUsage() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if s.apiMetrics == nil {
			return
		}
		var tenant string
		if orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context()); ok && orgID > 0 {
			tenant = orgID.String()
		}
		s.apiMetrics.ObserveAPIRequest(c.Request.Method, strconv.Itoa(c.Writer.Status()), tenant, time.Since(start))
	}
}

// RequireRole verifies the caller's membership in the resolved organization
// and that their role satisfies at least one of required. The verified role
// is stored for handlers that branch on it.
func (s *Server) RequireRole(required ...organizationdomain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
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

		role, err := s.guard.Authorize(c.Request.Context(), userID, orgID, required...)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextRoleKey, role)
		c.Next()
	}
}

var orgPathPattern = regexp.MustCompile(`/org/(\d+)(?:/|$)`)

// extractOrgID tries the request's org sources in fixed priority: the
// X-Org-ID header, then the orgId/org_id query parameters, then an
// /org/<digits>/ path segment. Invalid candidates are skipped in favor of
// later sources.
func extractOrgID(c *gin.Context) (snowflake.ID, bool) {
	if id, ok := parseOrgCandidate(c.GetHeader(HeaderOrg)); ok {
		return id, true
	}
	if value, ok := c.GetQuery("orgId"); ok {
		if id, ok := parseOrgCandidate(value); ok {
			return id, true
		}
	}
	if value, ok := c.GetQuery("org_id"); ok {
		if id, ok := parseOrgCandidate(value); ok {
			return id, true
		}
	}
	if match := orgPathPattern.FindStringSubmatch(c.Request.URL.Path); len(match) == 2 {
		if id, ok := parseOrgCandidate(match[1]); ok {
			return id, true
		}
	}
	return 0, false
}

func parseOrgCandidate(raw string) (snowflake.ID, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(value)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// orgIDFromRequest returns the resolved org or the 400 every tenant-scoped
// route answers when no organization resolved.
func (s *Server) orgIDFromRequest(c *gin.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok || orgID <= 0 {
		return 0, newValidationError("org_id", "invalid_organization", "missing or invalid organization id")
	}
	return orgID, nil
}

func sessionFromContext(c *gin.Context) *authdomain.Session {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	session, ok := value.(*authdomain.Session)
	if !ok {
		return nil
	}
	return session
}

func roleFromContext(c *gin.Context) (organizationdomain.Role, bool) {
	value, ok := c.Get(contextRoleKey)
	if !ok {
		return "", false
	}
	role, ok := value.(organizationdomain.Role)
	if !ok || !role.Valid() {
		return "", false
	}
	return role, true
}
