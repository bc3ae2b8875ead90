package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	"github.com/notahub/notahub/internal/currency"
	"github.com/notahub/notahub/internal/fiscalinvoice"
	"github.com/notahub/notahub/internal/fiscalinvoice/reconciler"
	"github.com/notahub/notahub/internal/migration"
	"github.com/notahub/notahub/internal/observability"
	"github.com/notahub/notahub/internal/providers"
	"github.com/notahub/notahub/internal/reference"
	"github.com/notahub/notahub/internal/server"
	"github.com/notahub/notahub/internal/taxprofile"
	"github.com/notahub/notahub/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		providers.Module,
		reference.Module,
		taxprofile.Module,
		currency.Module,
		fiscalinvoice.Module,
		reconciler.Module,

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
