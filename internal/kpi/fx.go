package kpi

import (
	"context"

	"github.com/smallbiznis/beacon/internal/kpi/repository"
	"github.com/smallbiznis/beacon/internal/kpi/rollup"
	"go.uber.org/fx"
)

// Module provides KPI storage without the worker; admin surfaces read
// snapshots but never compute them.
var Module = fx.Module("kpi.service",
	fx.Provide(repository.Provide),
)

// WorkerModule runs the rollup loop for the lifetime of the app. It expects
// Module in the same graph for the repository.
var WorkerModule = fx.Module("kpi.rollup",
	fx.Provide(rollup.ProvideConfig),
	fx.Provide(rollup.New),
	fx.Invoke(RegisterWorker),
)

func RegisterWorker(lc fx.Lifecycle, worker *rollup.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
