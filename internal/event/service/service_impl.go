package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/cloudmetrics"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	"github.com/smallbiznis/beacon/internal/orgcontext"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"github.com/smallbiznis/beacon/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxEventNameLength = 200

	// maxFutureSkew bounds how far ahead of server time a client may claim
	// an event occurred. SDK clocks drift; anything beyond this is a bug.
	maxFutureSkew = time.Hour
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    eventdomain.Repository
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	repo    eventdomain.Repository
	metrics *telemetry.Metrics
}

func NewService(p ServiceParam) eventdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("event.service"),

		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Ingest(
	ctx context.Context,
	req eventdomain.CreateIngestRequest,
) (*eventdomain.IngestResponse, error) {

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return nil, eventdomain.ErrInvalidOrganization
	}

	rawProjectID, ok := tenantctx.ProjectID(ctx)
	if !ok || rawProjectID == 0 {
		return nil, eventdomain.ErrInvalidProject
	}
	projectID := snowflake.ID(rawProjectID)

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxEventNameLength {
		return nil, eventdomain.ErrInvalidEventName
	}

	now := time.Now().UTC()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}
	if occurredAt.After(now.Add(maxFutureSkew)) {
		return nil, eventdomain.ErrInvalidOccurredAt
	}

	dedupeKey := normalizeDedupeKey(req.DedupeKey)

	// Check presence before building the record. An already-accepted event
	// is returned exactly as stored so a retry can never produce a second
	// fact.
	if dedupeKey != "" {
		existing, err := s.repo.FindByDedupeKey(ctx, s.db, projectID, dedupeKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.recordDeduplicated(orgID)
			return responseFrom(existing, true), nil
		}
	}

	record := &eventdomain.Event{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ProjectID:  projectID,
		Name:       name,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}
	if dedupeKey != "" {
		record.DedupeKey = &dedupeKey
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		return nil, err
	}

	// Insert lost a dedupe race. The stored row wins.
	if !inserted && dedupeKey != "" {
		existing, err := s.repo.FindByDedupeKey(ctx, s.db, projectID, dedupeKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.recordDeduplicated(orgID)
			return responseFrom(existing, true), nil
		}
	}

	if s.metrics != nil {
		s.metrics.RecordEventIngested(orgID.String(), "collect")
	}
	go cloudmetrics.RecordEventIngested(orgID.String(), projectID.String())

	return responseFrom(record, false), nil
}

func (s *Service) recordDeduplicated(orgID snowflake.ID) {
	if s.metrics != nil {
		s.metrics.RecordEventDeduplicated(orgID.String())
	}
}

func responseFrom(ev *eventdomain.Event, deduplicated bool) *eventdomain.IngestResponse {
	return &eventdomain.IngestResponse{
		EventID:      ev.ID.String(),
		ProjectID:    ev.ProjectID.String(),
		Name:         ev.Name,
		OccurredAt:   ev.OccurredAt,
		Deduplicated: deduplicated,
	}
}

func normalizeDedupeKey(key string) string {
	return strings.TrimSpace(key)
}
