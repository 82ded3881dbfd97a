package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/beacon/internal/tenant"
)

func (s *Server) ListEvents(c *gin.Context) {
	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	projectID, err := parseOptionalSnowflakeID(c.Query("project_id"))
	if err != nil {
		AbortWithError(c, newValidationError("project_id", "invalid", "project_id must be a valid id"))
		return
	}

	since, err := parseOptionalTime(c.Query("since"), false)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid", "since must be RFC3339 or YYYY-MM-DD"))
		return
	}

	until, err := parseOptionalTime(c.Query("until"), true)
	if err != nil {
		AbortWithError(c, newValidationError("until", "invalid", "until must be RFC3339 or YYYY-MM-DD"))
		return
	}

	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid", "limit must be an integer"))
		return
	}

	filter := tenant.EventFilter{
		ProjectID: projectID,
		Name:      c.Query("name"),
		Since:     since,
		Until:     until,
	}
	if limit != nil {
		filter.Limit = int(*limit)
	}

	events, err := gw.ListEvents(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}
