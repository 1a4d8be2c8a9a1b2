package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gebeyahq/gebeya/internal/config"
	"github.com/gebeyahq/gebeya/internal/migration"
	"github.com/gebeyahq/gebeya/internal/observability"
	"github.com/gebeyahq/gebeya/internal/server"
	"github.com/gebeyahq/gebeya/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
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
