package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/beacon/internal/providers/pdf"
	"github.com/smallbiznis/beacon/internal/tenant"
)

// ExportKPIReport streams the active organization's KPI snapshots as a PDF.
func (s *Server) ExportKPIReport(c *gin.Context) {
	if s.pdf == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

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

	org, err := gw.Organization(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pdf.KPIReportData{
		OrgName:     org.Name,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Rows:        make([]pdf.KPIReportRow, 0, len(snapshots)),
	}
	for _, snapshot := range snapshots {
		row := pdf.KPIReportRow{
			MetricKey: snapshot.MetricKey,
			Period: fmt.Sprintf("%s to %s",
				snapshot.PeriodStart.UTC().Format(dateOnlyLayout),
				snapshot.PeriodEnd.UTC().Format(dateOnlyLayout)),
			Value: strconv.FormatFloat(snapshot.Value, 'f', -1, 64),
		}
		if snapshot.ProjectID != 0 {
			row.ProjectID = snapshot.ProjectID.String()
		}
		data.Rows = append(data.Rows, row)
	}

	reader, err := s.pdf.GenerateKPIReport(c.Request.Context(), data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if reader == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	filename := fmt.Sprintf("kpi-report-%s.pdf", time.Now().UTC().Format(dateOnlyLayout))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		_ = c.Error(err)
	}
}
