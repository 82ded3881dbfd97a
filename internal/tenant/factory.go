// Package tenant binds an authenticated caller to one organization and hands
// back a data gateway that cannot reach outside it. Handlers never touch
// repositories directly; they go through a bound Gateway.
package tenant

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/config"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
	"github.com/smallbiznis/beacon/internal/events"
	kpidomain "github.com/smallbiznis/beacon/internal/kpi/domain"
	organizationdomain "github.com/smallbiznis/beacon/internal/organization/domain"
	projectdomain "github.com/smallbiznis/beacon/internal/project/domain"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type FactoryParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Guard       authorization.Guard
	OrgRepo     organizationdomain.Repository
	ProjectRepo projectdomain.Repository
	EventRepo   eventdomain.Repository
	KPIRepo     kpidomain.Repository
	Outbox      *events.Outbox            `optional:"true"`
	Plans       *config.PlanCatalogHolder `optional:"true"`
	Metrics     *telemetry.Metrics        `optional:"true"`
}

// Factory produces tenant gateways. It owns the shared dependencies; the
// per-request state lives on the Gateway it returns.
type Factory struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	guard       authorization.Guard
	orgRepo     organizationdomain.Repository
	projectRepo projectdomain.Repository
	eventRepo   eventdomain.Repository
	kpiRepo     kpidomain.Repository
	outbox      *events.Outbox
	plans       *config.PlanCatalogHolder
	metrics     *telemetry.Metrics
}

func NewFactory(p FactoryParams) *Factory {
	return &Factory{
		db:          p.DB,
		log:         p.Log.Named("tenant.factory"),
		genID:       p.GenID,
		guard:       p.Guard,
		orgRepo:     p.OrgRepo,
		projectRepo: p.ProjectRepo,
		eventRepo:   p.EventRepo,
		kpiRepo:     p.KPIRepo,
		outbox:      p.Outbox,
		plans:       p.Plans,
		metrics:     p.Metrics,
	}
}

// Bind verifies the caller's membership in the organization and returns a
// gateway fixed to it. Any membership role suffices; operations needing a
// higher rank check again on their own. The verified ids never change for
// the life of the gateway.
func (f *Factory) Bind(ctx context.Context, callerID, orgID snowflake.ID) (*Gateway, error) {
	role, err := f.guard.Authorize(ctx, callerID, orgID)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		factory:  f,
		orgID:    orgID,
		callerID: callerID,
		role:     role,
	}, nil
}
