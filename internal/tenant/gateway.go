package tenant

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/pkg/db"
	"github.com/smallbiznis/beacon/pkg/rls"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectCreatedTopic is the outbox topic emitted after a project insert.
const ProjectCreatedTopic = "project.created"

const maxEventNameLength = 200

// Gateway is a tenant-scoped view over the data layer. The organization,
// caller, and role were verified at Bind time and are immutable; no
// operation accepts an organization id from outside.
type Gateway struct {
	factory  *Factory
	orgID    snowflake.ID
	callerID snowflake.ID
	role     organizationdomain.Role
}

// OrgID returns the verified organization id the gateway is bound to.
func (g *Gateway) OrgID() snowflake.ID { return g.orgID }

// CallerID returns the verified caller behind this gateway.
func (g *Gateway) CallerID() snowflake.ID { return g.callerID }

// Role returns the caller's membership role at Bind time.
func (g *Gateway) Role() organizationdomain.Role { return g.role }

type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Domain      string `json:"domain"`
}

// CreatedProject carries the raw API key exactly once; only its hash is
// stored.
type CreatedProject struct {
	Project projectdomain.Project `json:"project"`
	APIKey  string                `json:"api_key"`
}

type EventFilter struct {
	ProjectID *snowflake.ID
	Name      string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

type InsertEventInput struct {
	ProjectID  snowflake.ID
	Name       string
	Metadata   map[string]any
	OccurredAt *time.Time
}

type KPIFilter struct {
	ProjectID *snowflake.ID
	MetricKey string
}

// Organization returns the bound organization row.
func (g *Gateway) Organization(ctx context.Context) (*organizationdomain.Organization, error) {
	return g.factory.orgRepo.GetOrganization(ctx, g.orgID)
}

// ListProjects returns the bound organization's projects, newest first.
func (g *Gateway) ListProjects(ctx context.Context) ([]projectdomain.Project, error) {
	return g.factory.projectRepo.FindAll(ctx, g.factory.db, g.orgID)
}

// GetProject returns the project iff it belongs to the bound organization.
// Cross-tenant ids are indistinguishable from absent ones.
func (g *Gateway) GetProject(ctx context.Context, projectID snowflake.ID) (*projectdomain.Project, error) {
	if projectID <= 0 {
		return nil, projectdomain.ErrProjectNotFound
	}
	project, err := g.factory.projectRepo.FindByID(ctx, g.factory.db, g.orgID, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, projectdomain.ErrProjectNotFound
	}
	return project, nil
}

// CreateProject validates the input, enforces the plan's project quota, and
// inserts a project with a fresh API key. The raw key is returned once and
// never stored.
func (g *Gateway) CreateProject(ctx context.Context, input CreateProjectInput) (*CreatedProject, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, projectdomain.ErrInvalidName
	}

	if err := g.enforceProjectLimit(ctx); err != nil {
		return nil, err
	}

	rawKey, err := projectdomain.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	project := projectdomain.Project{
		ID:        g.factory.genID.Generate(),
		OrgID:     g.orgID,
		Name:      name,
		KeyHash:   projectdomain.HashAPIKey(rawKey),
		KeyPrefix: projectdomain.KeyPrefix(rawKey),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		project.Description = &description
	}
	if projectDomain := strings.TrimSpace(input.Domain); projectDomain != "" {
		project.Domain = &projectDomain
	}

	err = g.writeTx(ctx, func(tx *gorm.DB) error {
		if err := g.factory.projectRepo.Insert(ctx, tx, &project); err != nil {
			return err
		}
		g.emitProjectCreated(ctx, tx, project)
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Key collision. The caller retries with a fresh key.
			return nil, projectdomain.ErrDuplicateCredential
		}
		g.factory.log.Warn("project insert failed",
			zap.String("org_id", g.orgID.String()),
			zap.String("caller_id", g.callerID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &CreatedProject{Project: project, APIKey: rawKey}, nil
}

// DeactivateProject marks the project inactive; its API key stops resolving
// on the collect path once the resolver cache entry expires.
func (g *Gateway) DeactivateProject(ctx context.Context, projectID snowflake.ID) (*projectdomain.Project, error) {
	project, err := g.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsActive {
		return project, nil
	}

	project.IsActive = false
	project.UpdatedAt = time.Now().UTC()
	err = g.writeTx(ctx, func(tx *gorm.DB) error {
		return g.factory.projectRepo.Update(ctx, tx, project)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// ListEvents returns bound-org events ordered by occurrence time. The limit
// defaults to and is clamped at the listing cap.
func (g *Gateway) ListEvents(ctx context.Context, filter EventFilter) ([]eventdomain.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > eventdomain.DefaultListLimit {
		limit = eventdomain.DefaultListLimit
	}

	return g.factory.eventRepo.List(ctx, g.factory.db, eventdomain.ListFilter{
		OrgID:     g.orgID,
		ProjectID: filter.ProjectID,
		Name:      filter.Name,
		Since:     filter.Since,
		Until:     filter.Until,
		Limit:     limit,
	})
}

// RecentEvents returns the newest events for dashboard surfaces.
func (g *Gateway) RecentEvents(ctx context.Context, limit int) ([]eventdomain.Event, error) {
	return g.factory.eventRepo.FindRecent(ctx, g.factory.db, g.orgID, limit)
}

// InsertEvent resolves the project through GetProject first, so absent and
// cross-tenant project ids fail identically, then records an immutable event
// stamped with the bound organization.
func (g *Gateway) InsertEvent(ctx context.Context, input InsertEventInput) (*eventdomain.Event, error) {
	project, err := g.GetProject(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > maxEventNameLength {
		return nil, eventdomain.ErrInvalidEventName
	}

	now := time.Now().UTC()
	occurredAt := now
	if input.OccurredAt != nil {
		occurredAt = input.OccurredAt.UTC()
	}

	record := eventdomain.Event{
		ID:         g.factory.genID.Generate(),
		OrgID:      g.orgID,
		ProjectID:  project.ID,
		Name:       name,
		OccurredAt: occurredAt,
		CreatedAt:  now,
	}
	if len(input.Metadata) > 0 {
		record.Metadata = datatypes.JSONMap(input.Metadata)
	}

	err = g.writeTx(ctx, func(tx *gorm.DB) error {
		_, err := g.factory.eventRepo.Insert(ctx, tx, &record)
		return err
	})
	if err != nil {
		return nil, err
	}

	if g.factory.metrics != nil {
		g.factory.metrics.RecordEventIngested(g.orgID.String(), "admin")
	}
	return &record, nil
}

// ListKPISnapshots returns bound-org snapshots ordered by period start.
func (g *Gateway) ListKPISnapshots(ctx context.Context, filter KPIFilter) ([]kpidomain.KPISnapshot, error) {
	return g.factory.kpiRepo.List(ctx, g.factory.db, kpidomain.KPIFilter{
		OrgID:     g.orgID,
		ProjectID: filter.ProjectID,
		MetricKey: filter.MetricKey,
	})
}

func (g *Gateway) enforceProjectLimit(ctx context.Context) error {
	if g.factory.plans == nil {
		return nil
	}

	org, err := g.Organization(ctx)
	if err != nil {
		return err
	}
	plan := g.factory.plans.Get().Lookup(org.Plan)
	if plan.MaxProjects <= 0 {
		return nil
	}

	count, err := g.factory.projectRepo.CountByOrg(ctx, g.factory.db, g.orgID)
	if err != nil {
		return err
	}
	if count >= int64(plan.MaxProjects) {
		return projectdomain.ErrPlanLimitReached
	}
	return nil
}

// writeTx runs fn inside a transaction. On postgres the tenant GUC is set
// first so row-level-security policies see the bound organization; the
// WHERE-clause scoping stays authoritative on every dialect.
func (g *Gateway) writeTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.factory.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rls.Supported(tx) {
			if err := rls.WithTenant(tx, int64(g.orgID)); err != nil {
				return err
			}
		}
		return fn(tx)
	})
}

func (g *Gateway) emitProjectCreated(ctx context.Context, tx *gorm.DB, project projectdomain.Project) {
	if g.factory.outbox == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"organization_id": g.orgID.String(),
		"project_id":      project.ID.String(),
		"name":            project.Name,
		"created_by":      g.callerID.String(),
	})
	if err != nil {
		g.factory.log.Warn("failed to marshal project event payload", zap.Error(err))
		return
	}
	if err := g.factory.outbox.EnqueueTx(ctx, tx, g.orgID, ProjectCreatedTopic, payload); err != nil {
		g.factory.log.Warn("failed to enqueue project event",
			zap.String("project_id", project.ID.String()),
			zap.Error(err),
		)
	}
}
