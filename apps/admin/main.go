package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/beacon/internal/audit"
	"github.com/smallbiznis/beacon/internal/auth"
	"github.com/smallbiznis/beacon/internal/authorization"
	"github.com/smallbiznis/beacon/internal/cloudmetrics"
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/dashboard"
	"github.com/smallbiznis/beacon/internal/event"
	"github.com/smallbiznis/beacon/internal/events"
	"github.com/smallbiznis/beacon/internal/invitation"
	"github.com/smallbiznis/beacon/internal/kpi"
	"github.com/smallbiznis/beacon/internal/observability"
	"github.com/smallbiznis/beacon/internal/organization"
	"github.com/smallbiznis/beacon/internal/project"
	"github.com/smallbiznis/beacon/internal/providers/email"
	"github.com/smallbiznis/beacon/internal/providers/pdf"
	"github.com/smallbiznis/beacon/internal/server"
	"github.com/smallbiznis/beacon/internal/signup"
	"github.com/smallbiznis/beacon/internal/tenant"
	"github.com/smallbiznis/beacon/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		cloudmetrics.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		// The console needs every workspace-facing domain.
		authorization.Module,
		audit.Module,
		events.Module,
		auth.Module,
		signup.Module,
		organization.Module,
		invitation.Module,
		project.Module,
		event.Module,
		kpi.Module,
		dashboard.Module,
		tenant.Module,
		email.Module,
		pdf.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterAuthRoutes()
			s.RegisterAdminRoutes()
			s.RegisterFallback()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
