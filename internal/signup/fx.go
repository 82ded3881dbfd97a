package signup

import (
	"github.com/smallbiznis/beacon/internal/config"
	"github.com/smallbiznis/beacon/internal/events"
	"github.com/smallbiznis/beacon/internal/signup/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("signup.service",
	fx.Provide(newProvisioner),
	fx.Provide(NewService),
)

func newProvisioner(cfg config.Config, outbox *events.Outbox) domain.Provisioner {
	if !cfg.IsCloud() {
		return NewNoopProvisioner()
	}

	return NewEventProvisioner(outbox)
}
