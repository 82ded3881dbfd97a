package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/clock"
	"github.com/smallbiznis/beacon/internal/cloudmetrics"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/kpi"
	"github.com/smallbiznis/beacon/internal/observability"
	"github.com/smallbiznis/beacon/internal/ratelimit"
	"github.com/smallbiznis/beacon/pkg/db"
	"github.com/smallbiznis/beacon/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(telemetry.NewMetrics),
		db.Module,
		clock.Module,

		// The worker authorizes each org as the system actor and takes a
		// per-org lock so replicas never double-compute a window.
		authorization.Module,
		kpi.Module,
		kpi.WorkerModule,
		ratelimit.Module,

		// No API surface; rollup health is scraped from the sidecar
		// listener and accounting ships through the cloud pusher.
		cloudmetrics.Module,
		fx.Invoke(cloudmetrics.RegisterInstrumentation),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(4)
	if err != nil {
		panic(err)
	}
	return node
}
