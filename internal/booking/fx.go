package booking

import (
	"github.com/rentora/escrow/internal/booking/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("booking",
	fx.Provide(repository.Provide),
)
