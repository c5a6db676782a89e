package billing

import (
	"github.com/flowforge/flowforge/internal/billing/adapters"
	"github.com/flowforge/flowforge/internal/billing/adapters/stripeadapter"
	"github.com/flowforge/flowforge/internal/billing/repository"
	billingservice "github.com/flowforge/flowforge/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripeadapter.NewFactory(),
		)
	}),
	fx.Provide(billingservice.New),
)
