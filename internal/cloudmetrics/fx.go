package cloudmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const accountingInterval = 30 * time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Invoke(Register),
	fx.Invoke(runAccountingWorker),
)

// runAccountingWorker periodically refreshes install-level gauges and ships
// the registry through the configured batch pusher.
func runAccountingWorker(lc fx.Lifecycle, pusher Pusher, registry *prometheus.Registry, logger *zap.Logger, db *gorm.DB) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sys := newSystemMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting cloud metrics accounting worker")
			go func() {
				ticker := time.NewTicker(accountingInterval)
				defer ticker.Stop()

				push := func() {
					updateSystemMetrics(sys)
					updateOrganizationCount(ctx, sys, db)
					if err := pusher.Push(ctx, registry); err != nil {
						logger.Warn("cloud metrics push failed", zap.Error(err))
					}
				}

				push()
				for {
					select {
					case <-ticker.C:
						push()
					case <-ctx.Done():
						logger.Info("stopping cloud metrics accounting worker")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func updateSystemMetrics(sys *systemMetrics) {
	if sys == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	sys.memorySys.Set(float64(m.Sys))
}

func updateOrganizationCount(ctx context.Context, sys *systemMetrics, db *gorm.DB) {
	if sys == nil || db == nil {
		return
	}
	var count int64
	if err := db.WithContext(ctx).Table("organizations").Count(&count).Error; err != nil {
		return
	}
	sys.organizations.Set(float64(count))
}
