package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
)

// CollectEvent ingests one event for the project resolved from the API key.
// Dedupe keys make retries safe; replays return the stored event.
func (s *Server) CollectEvent(c *gin.Context) {
	if s.eventSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req eventdomain.CreateIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		c.Set("event_name", name)
	}

	resp, err := s.eventSvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
