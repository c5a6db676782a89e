package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/flowforge/flowforge/internal/clock"
	"github.com/flowforge/flowforge/internal/config"
	"github.com/flowforge/flowforge/internal/migration"
	"github.com/flowforge/flowforge/internal/observability"
	"github.com/flowforge/flowforge/internal/scheduler"
	"github.com/flowforge/flowforge/internal/server"
	"github.com/flowforge/flowforge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		migration.Module,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
