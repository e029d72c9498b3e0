package contract

import (
	"github.com/rentora/escrow/internal/contract/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("contract",
	fx.Provide(repository.Provide),
)
