package tenant

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/config"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	eventrepository "github.com/smallbiznis/beacon/internal/event/repository"
	"github.com/smallbiznis/beacon/internal/events"
	eventsdomain "github.com/smallbiznis/beacon/internal/events/domain"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	kpirepository "github.com/smallbiznis/beacon/internal/kpi/repository"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	organizationrepository "github.com/smallbiznis/beacon/internal/organization/repository"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	projectrepository "github.com/smallbiznis/beacon/internal/project/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gatewayFixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	factory *Factory

	orgID    snowflake.ID
	ownerID  snowflake.ID
	memberID snowflake.ID

	otherOrgID   snowflake.ID
	otherOwnerID snowflake.ID
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:gateway_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.OrganizationMember{},
		&projectdomain.Project{},
		&eventdomain.Event{},
		&kpidomain.KPISnapshot{},
		&eventsdomain.DomainEvent{},
	)
	assert.NoError(t, err)

	node, err := snowflake.NewNode(3)
	assert.NoError(t, err)

	plans, err := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	assert.NoError(t, err)

	log := zap.NewNop()
	factory := NewFactory(FactoryParams{
		DB:          db,
		Log:         log,
		GenID:       node,
		Guard:       authorization.NewGuard(authorization.GuardParams{DB: db, Log: log}),
		OrgRepo:     organizationrepository.NewRepository(db),
		ProjectRepo: projectrepository.Provide(),
		EventRepo:   eventrepository.Provide(),
		KPIRepo:     kpirepository.Provide(),
		Outbox:      events.NewOutbox(db, node),
		Plans:       plans,
	})

	f := &gatewayFixture{
		db:      db,
		node:    node,
		factory: factory,
	}
	f.orgID, f.ownerID = f.seedOrg(t, "Acme", "free")
	f.memberID = node.Generate()
	f.seedMember(t, f.orgID, f.memberID, "member")
	f.otherOrgID, f.otherOwnerID = f.seedOrg(t, "Rival", "free")

	return f
}

func (f *gatewayFixture) seedOrg(t *testing.T, name, plan string) (snowflake.ID, snowflake.ID) {
	t.Helper()

	orgID := f.node.Generate()
	ownerID := f.node.Generate()
	err := f.db.Create(&organizationdomain.Organization{
		ID:        orgID,
		Name:      name,
		Slug:      fmt.Sprintf("%s-%d", name, orgID),
		Plan:      plan,
		CreatedAt: time.Now().UTC(),
	}).Error
	assert.NoError(t, err)
	f.seedMember(t, orgID, ownerID, "owner")
	return orgID, ownerID
}

func (f *gatewayFixture) seedMember(t *testing.T, orgID, userID snowflake.ID, role string) {
	t.Helper()

	err := f.db.Create(&organizationdomain.OrganizationMember{
		ID:        f.node.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}).Error
	assert.NoError(t, err)
}

func (f *gatewayFixture) bind(t *testing.T, callerID, orgID snowflake.ID) *Gateway {
	t.Helper()

	gw, err := f.factory.Bind(context.Background(), callerID, orgID)
	assert.NoError(t, err)
	return gw
}

func TestFactory_Bind_FailClosed(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	t.Run("zero caller is unauthenticated", func(t *testing.T) {
		_, err := f.factory.Bind(ctx, 0, f.orgID)
		assert.ErrorIs(t, err, authorization.ErrUnauthenticated)
	})

	t.Run("non-member cannot bind", func(t *testing.T) {
		_, err := f.factory.Bind(ctx, f.otherOwnerID, f.orgID)
		assert.ErrorIs(t, err, authorization.ErrNotAMember)
	})

	t.Run("member binds with verified role", func(t *testing.T) {
		gw := f.bind(t, f.memberID, f.orgID)
		assert.Equal(t, organizationdomain.RoleMember, gw.Role())
		assert.Equal(t, f.orgID, gw.OrgID())
		assert.Equal(t, f.memberID, gw.CallerID())
	})
}

func TestGateway_CreateProject(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	gw := f.bind(t, f.ownerID, f.orgID)

	created, err := gw.CreateProject(ctx, CreateProjectInput{
		Name:        "  Website  ",
		Description: "marketing site",
	})
	assert.NoError(t, err)

	// 1. The raw key comes back once; only the hash is persisted.
	assert.Len(t, created.APIKey, 32)
	assert.Equal(t, projectdomain.HashAPIKey(created.APIKey), created.Project.KeyHash)
	assert.Equal(t, created.APIKey[:8], created.Project.KeyPrefix)
	assert.Equal(t, "Website", created.Project.Name)
	assert.Equal(t, f.orgID, created.Project.OrgID)
	assert.True(t, created.Project.IsActive)

	// 2. Creation lands in the outbox.
	var outboxCount int64
	err = f.db.Model(&eventsdomain.DomainEvent{}).
		Where("org_id = ? AND topic = ?", f.orgID, ProjectCreatedTopic).
		Count(&outboxCount).Error
	assert.NoError(t, err)
	assert.Equal(t, int64(1), outboxCount)

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := gw.CreateProject(ctx, CreateProjectInput{Name: "   "})
		assert.ErrorIs(t, err, projectdomain.ErrInvalidName)
	})
}

func TestGateway_CreateProject_PlanLimit(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	gw := f.bind(t, f.ownerID, f.orgID)

	// The free plan allows three projects.
	for i := 0; i < 3; i++ {
		_, err := gw.CreateProject(ctx, CreateProjectInput{Name: fmt.Sprintf("project-%d", i)})
		assert.NoError(t, err)
	}

	_, err := gw.CreateProject(ctx, CreateProjectInput{Name: "one-too-many"})
	assert.ErrorIs(t, err, projectdomain.ErrPlanLimitReached)

	// The limit is per organization, not global.
	other := f.bind(t, f.otherOwnerID, f.otherOrgID)
	_, err = other.CreateProject(ctx, CreateProjectInput{Name: "first-here"})
	assert.NoError(t, err)
}

func TestGateway_GetProject_CrossTenant(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	other := f.bind(t, f.otherOwnerID, f.otherOrgID)
	created, err := other.CreateProject(ctx, CreateProjectInput{Name: "secret"})
	assert.NoError(t, err)

	gw := f.bind(t, f.ownerID, f.orgID)

	// A foreign project id reads exactly like a missing one.
	_, err = gw.GetProject(ctx, created.Project.ID)
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)

	_, err = gw.GetProject(ctx, f.node.Generate())
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)

	_, err = gw.GetProject(ctx, 0)
	assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)
}

func TestGateway_ListProjects_NewestFirst(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	gw := f.bind(t, f.ownerID, f.orgID)

	first, err := gw.CreateProject(ctx, CreateProjectInput{Name: "first"})
	assert.NoError(t, err)
	second, err := gw.CreateProject(ctx, CreateProjectInput{Name: "second"})
	assert.NoError(t, err)

	projects, err := gw.ListProjects(ctx)
	assert.NoError(t, err)
	assert.Len(t, projects, 2)
	assert.Equal(t, second.Project.ID, projects[0].ID)
	assert.Equal(t, first.Project.ID, projects[1].ID)
}

func TestGateway_InsertAndListEvents(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	gw := f.bind(t, f.ownerID, f.orgID)

	created, err := gw.CreateProject(ctx, CreateProjectInput{Name: "app"})
	assert.NoError(t, err)
	projectID := created.Project.ID

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		_, err := gw.InsertEvent(ctx, InsertEventInput{
			ProjectID:  projectID,
			Name:       "page_view",
			Metadata:   map[string]any{"path": fmt.Sprintf("/p/%d", i)},
			OccurredAt: &at,
		})
		assert.NoError(t, err)
	}

	t.Run("events come back oldest first", func(t *testing.T) {
		items, err := gw.ListEvents(ctx, EventFilter{ProjectID: &projectID})
		assert.NoError(t, err)
		assert.Len(t, items, 3)
		for i := 1; i < len(items); i++ {
			assert.False(t, items[i].OccurredAt.Before(items[i-1].OccurredAt))
		}
		assert.Equal(t, f.orgID, items[0].OrgID)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		items, err := gw.ListEvents(ctx, EventFilter{Limit: 2})
		assert.NoError(t, err)
		assert.Len(t, items, 2)

		items, err = gw.ListEvents(ctx, EventFilter{Limit: eventdomain.DefaultListLimit + 1})
		assert.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("cross-tenant project id cannot receive events", func(t *testing.T) {
		other := f.bind(t, f.otherOwnerID, f.otherOrgID)
		_, err := other.InsertEvent(ctx, InsertEventInput{
			ProjectID: projectID,
			Name:      "smuggled",
		})
		assert.ErrorIs(t, err, projectdomain.ErrProjectNotFound)
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		_, err := gw.InsertEvent(ctx, InsertEventInput{ProjectID: projectID, Name: "  "})
		assert.ErrorIs(t, err, eventdomain.ErrInvalidEventName)
	})
}

func TestGateway_ListKPISnapshots_ScopedToOrg(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	periodStart := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	seed := func(orgID snowflake.ID, value float64) {
		err := f.db.Create(&kpidomain.KPISnapshot{
			ID:          f.node.Generate(),
			OrgID:       orgID,
			MetricKey:   kpidomain.MetricEventsTotal,
			PeriodStart: periodStart,
			PeriodEnd:   periodStart.Add(24 * time.Hour),
			Value:       value,
			ComputedAt:  time.Now().UTC(),
		}).Error
		assert.NoError(t, err)
	}
	seed(f.orgID, 42)
	seed(f.otherOrgID, 7)

	gw := f.bind(t, f.ownerID, f.orgID)
	rows, err := gw.ListKPISnapshots(ctx, KPIFilter{})
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, float64(42), rows[0].Value)
	assert.Equal(t, f.orgID, rows[0].OrgID)
}

func TestGateway_DeactivateProject(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	gw := f.bind(t, f.ownerID, f.orgID)

	created, err := gw.CreateProject(ctx, CreateProjectInput{Name: "sunset"})
	assert.NoError(t, err)

	project, err := gw.DeactivateProject(ctx, created.Project.ID)
	assert.NoError(t, err)
	assert.False(t, project.IsActive)

	// Deactivating twice is a no-op, not an error.
	project, err = gw.DeactivateProject(ctx, created.Project.ID)
	assert.NoError(t, err)
	assert.False(t, project.IsActive)

	fetched, err := gw.GetProject(ctx, created.Project.ID)
	assert.NoError(t, err)
	assert.False(t, fetched.IsActive)
}
