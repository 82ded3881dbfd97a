package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/cache"
	"github.com/smallbiznis/beacon/internal/cloudmetrics"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/event"
	"github.com/smallbiznis/beacon/internal/observability"
	"github.com/smallbiznis/beacon/internal/project"
	"github.com/smallbiznis/beacon/internal/ratelimit"
	"github.com/smallbiznis/beacon/internal/server"
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

		// Ingest needs API key resolution, the event writer, and limits.
		project.Module,
		cache.Module,
		event.Module,
		ratelimit.Module,
		cloudmetrics.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterCollectRoutes()
			s.RegisterFallback()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
