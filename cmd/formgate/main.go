package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/migration"
	"github.com/formgate/formgate/internal/observability"
	"github.com/formgate/formgate/internal/server"
	"github.com/formgate/formgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
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
