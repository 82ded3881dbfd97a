package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetHomeDashboard returns the workspace overview for the active
// organization.
func (s *Server) GetHomeDashboard(c *gin.Context) {
	if s.dashboardSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	summary, err := s.dashboardSvc.Summary(c.Request.Context(), gw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
