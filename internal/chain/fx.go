package chain

import (
	"github.com/rentora/escrow/internal/chain/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chain.service",
	fx.Provide(service.NewService),
)
