// Package pdf renders downloadable reports for the admin surface.
package pdf

import (
	"context"
	"io"
)

// KPIReportData is the flattened, display-ready input for a KPI export.
// Values arrive preformatted so the renderer stays layout-only.
type KPIReportData struct {
	OrgName     string
	GeneratedAt string
	Rows        []KPIReportRow
}

type KPIReportRow struct {
	MetricKey string
	ProjectID string
	Period    string
	Value     string
}

type Provider interface {
	GenerateKPIReport(ctx context.Context, data KPIReportData) (io.Reader, error)
}

// NoOpProvider satisfies Provider for wiring that never exports. Callers
// must treat a nil reader as "no document".
type NoOpProvider struct{}

func (p *NoOpProvider) GenerateKPIReport(ctx context.Context, data KPIReportData) (io.Reader, error) {
	return nil, nil
}
