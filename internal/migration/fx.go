package migration

import (
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.DefaultOrgID != 0 {
			if err := seed.EnsureDefaultOrgWithID(conn, cfg.DefaultOrgID); err != nil {
				return err
			}
		} else {
			if err := seed.EnsureDefaultOrg(conn); err != nil {
				return err
			}
		}
		if cfg.IsCloud() {
			return nil
		}
		if cfg.Bootstrap.SeedDemoWorkspace && !cfg.IsProduction() {
			return seed.EnsureDemoWorkspace(conn)
		}
		if cfg.Bootstrap.EnsureDefaultOrgAndUser {
			return seed.EnsureDefaultOrgAndAdmin(conn)
		}
		return nil
	}),
)
