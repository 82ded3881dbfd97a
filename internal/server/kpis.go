package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/beacon/internal/tenant"
)

func (s *Server) ListKPISnapshots(c *gin.Context) {
	gw, ok := s.bindGateway(c)
	if !ok {
		return
	}

	projectID, err := parseOptionalSnowflakeID(c.Query("project_id"))
	if err != nil {
		AbortWithError(c, newValidationError("project_id", "invalid", "project_id must be a valid id"))
		return
	}

	snapshots, err := gw.ListKPISnapshots(c.Request.Context(), tenant.KPIFilter{
		ProjectID: projectID,
		MetricKey: c.Query("metric_key"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"kpis": snapshots})
}
