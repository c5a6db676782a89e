package generation

import (
	"github.com/flowforge/flowforge/internal/generation/client"
	"github.com/flowforge/flowforge/internal/generation/contextbuilder"
	generationservice "github.com/flowforge/flowforge/internal/generation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generation.service",
	fx.Provide(contextbuilder.New),
	fx.Provide(client.New),
	fx.Provide(generationservice.New),
)
