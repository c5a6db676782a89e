package catalog

import (
	"github.com/flowforge/flowforge/internal/catalog/repository"
	catalogservice "github.com/flowforge/flowforge/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(catalogservice.New),
)
