package pdf

import (
	"bytes"
	"context"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateKPIReport(ctx context.Context, data KPIReportData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "KPI Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(14,
		col.New(6).Add(
			text.New("Workspace: "+data.OrgName, props.Text{Top: 0}),
			text.New("Generated: "+data.GeneratedAt, props.Text{Top: 5}),
		),
		col.New(6),
	)

	m.AddRow(10,
		text.NewCol(4, "Metric", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Project", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Period", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Value", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, row := range data.Rows {
		project := row.ProjectID
		if project == "" {
			project = "workspace"
		}
		m.AddRow(8,
			text.NewCol(4, row.MetricKey, props.Text{Size: 9}),
			text.NewCol(3, project, props.Text{Size: 9}),
			text.NewCol(3, row.Period, props.Text{Size: 9}),
			text.NewCol(2, row.Value, props.Text{Size: 9, Align: align.Right}),
		)
	}

	if len(data.Rows) == 0 {
		m.AddRow(10,
			text.NewCol(12, "No KPI snapshots recorded for this period.", props.Text{Size: 9}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
