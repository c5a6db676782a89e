package conversation

import (
	"github.com/flowforge/flowforge/internal/conversation/repository"
	conversationservice "github.com/flowforge/flowforge/internal/conversation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("conversation.service",
	fx.Provide(repository.Provide),
	fx.Provide(conversationservice.New),
)
