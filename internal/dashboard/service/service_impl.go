package service

import (
	"context"
	"time"

	"github.com/smallbiznis/beacon/internal/dashboard/domain"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/internal/tenant"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const recentEventsLimit = 10

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	metrics *telemetry.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("dashboard.service"),
		metrics: p.Metrics,
	}
}

// Summary fetches the three dashboard sections concurrently. The first
// failing section cancels the rest; a partial dashboard is never returned.
func (s *Service) Summary(ctx context.Context, gw *tenant.Gateway) (*domain.Summary, error) {
	var (
		projects  []projectdomain.Project
		recent    []eventdomain.Event
		snapshots []kpidomain.KPISnapshot
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer s.observe("projects", time.Now())
		var err error
		projects, err = gw.ListProjects(groupCtx)
		return err
	})
	group.Go(func() error {
		defer s.observe("recent_events", time.Now())
		var err error
		recent, err = gw.RecentEvents(groupCtx, recentEventsLimit)
		return err
	})
	group.Go(func() error {
		defer s.observe("kpis", time.Now())
		var err error
		snapshots, err = gw.ListKPISnapshots(groupCtx, tenant.KPIFilter{})
		return err
	})
	if err := group.Wait(); err != nil {
		s.log.Warn("dashboard aggregation failed",
			zap.String("org_id", gw.OrgID().String()),
			zap.Error(err),
		)
		return nil, err
	}

	active := 0
	cards := make([]domain.ProjectCard, 0, len(projects))
	for _, project := range projects {
		if project.IsActive {
			active++
		}
		cards = append(cards, domain.ProjectCard{
			ID:        project.ID.String(),
			Name:      project.Name,
			IsActive:  project.IsActive,
			CreatedAt: project.CreatedAt,
		})
	}

	recentItems := make([]domain.RecentEvent, 0, len(recent))
	for _, event := range recent {
		recentItems = append(recentItems, domain.RecentEvent{
			ID:         event.ID.String(),
			ProjectID:  event.ProjectID.String(),
			Name:       event.Name,
			OccurredAt: event.OccurredAt,
		})
	}

	points := make([]domain.KPIPoint, 0, len(snapshots))
	for _, snapshot := range snapshots {
		point := domain.KPIPoint{
			MetricKey:   snapshot.MetricKey,
			PeriodStart: snapshot.PeriodStart,
			PeriodEnd:   snapshot.PeriodEnd,
			Value:       snapshot.Value,
		}
		if snapshot.ProjectID != 0 {
			point.ProjectID = snapshot.ProjectID.String()
		}
		points = append(points, point)
	}

	return &domain.Summary{
		TotalProjects:  len(projects),
		ActiveProjects: active,
		TotalEvents:    len(recent),
		Projects:       cards,
		RecentEvents:   recentItems,
		KPIs:           points,
	}, nil
}

func (s *Service) observe(section string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDashboardSection(section, time.Since(start))
}
