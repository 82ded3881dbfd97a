package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/clock"
	"github.com/smallbiznis/beacon/internal/events"
	eventsdomain "github.com/smallbiznis/beacon/internal/events/domain"
	"github.com/smallbiznis/beacon/internal/kpi"
	"github.com/smallbiznis/beacon/internal/migration"
	"github.com/smallbiznis/beacon/internal/observability"
	"github.com/smallbiznis/beacon/internal/server"
	"github.com/smallbiznis/beacon/internal/signup"
	"github.com/smallbiznis/beacon/pkg/db"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(telemetry.NewMetrics),
		db.Module,
		clock.Module,

		// Full HTTP surface plus every feature module behind it.
		server.Module,

		// Background work: migrations and seeds on boot, the KPI rollup
		// loop, and the outbox dispatcher.
		migration.Module,
		kpi.WorkerModule,
		fx.Invoke(subscribeProvisionedHandler),
		fx.Invoke(events.RunDispatcher),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// subscribeProvisionedHandler consumes workspace.provisioned in-process. A
// hosted deployment points a separate provisioning service at this topic.
func subscribeProvisionedHandler(dispatcher *events.Dispatcher, log *zap.Logger) {
	dispatcher.Subscribe(signup.WorkspaceProvisionedTopic, func(ctx context.Context, ev eventsdomain.DomainEvent) error {
		log.Info("workspace provisioned",
			zap.String("org_id", ev.OrgID.String()),
			zap.String("event_id", ev.ID.String()),
		)
		return nil
	})
}
