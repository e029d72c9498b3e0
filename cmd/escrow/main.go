package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/rentora/escrow/internal/booking"
	"github.com/rentora/escrow/internal/chain"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	"github.com/rentora/escrow/internal/contract"
	"github.com/rentora/escrow/internal/distlock"
	"github.com/rentora/escrow/internal/escrow"
	"github.com/rentora/escrow/internal/invoice"
	"github.com/rentora/escrow/internal/migration"
	"github.com/rentora/escrow/internal/notification"
	"github.com/rentora/escrow/internal/observability"
	"github.com/rentora/escrow/internal/payment"
	"github.com/rentora/escrow/internal/penalty"
	"github.com/rentora/escrow/internal/providers/email"
	"github.com/rentora/escrow/internal/scheduler"
	"github.com/rentora/escrow/internal/server"
	"github.com/rentora/escrow/internal/settlement"
	"github.com/rentora/escrow/internal/wallet"
	"github.com/rentora/escrow/pkg/db"
	"go.uber.org/fx"
)

// The monolith: API surface plus the in-process scheduler. Deployments that
// want a dedicated worker run apps/scheduler alongside and rely on the
// redis job locks.
func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		distlock.Module,
		migration.Module,

		// Functional domains
		contract.Module,
		booking.Module,
		invoice.Module,
		payment.Module,
		wallet.Module,
		email.Module,
		notification.Module,
		chain.Module,
		escrow.Module,
		penalty.Module,
		settlement.Module,

		scheduler.Module,
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
