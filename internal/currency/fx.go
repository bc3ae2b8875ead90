package currency

import (
	"github.com/notahub/notahub/internal/currency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("currency.resolver",
	fx.Provide(service.NewResolver),
)
