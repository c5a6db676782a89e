package credit

import (
	"github.com/flowforge/flowforge/internal/credit/repository"
	creditservice "github.com/flowforge/flowforge/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(repository.Provide),
	fx.Provide(creditservice.New),
)
