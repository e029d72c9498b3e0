package penalty

import (
	"github.com/rentora/escrow/internal/penalty/repository"
	"github.com/rentora/escrow/internal/penalty/service"
	"go.uber.org/fx"
)

var Module = fx.Module("penalty",
	repository.Module,
	fx.Provide(service.NewEngine),
)
