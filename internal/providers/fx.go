package providers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notahub/notahub/internal/config"
	currencydomain "github.com/notahub/notahub/internal/currency/domain"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/internal/providers/bcb"
	"github.com/notahub/notahub/internal/providers/nfse"
	"github.com/notahub/notahub/internal/providers/stripe"
)

// Module wires the outbound integrations: the payment processor
// settlement lookup, the central-bank rate source behind its cache, and
// the tax authority gateway.
var Module = fx.Module("providers",
	fx.Provide(
		NewRedisClient,
		fx.Annotate(stripe.NewClient, fx.As(new(currencydomain.SettlementLookup))),
		fx.Annotate(NewRateSource, fx.As(new(currencydomain.RateSource))),
		fx.Annotate(nfse.NewClient, fx.As(new(fiscaldomain.Provider))),
	),
)

// NewRedisClient returns nil when no address is configured; consumers
// treat a nil client as cache disabled.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

func NewRateSource(cfg config.Config, client *redis.Client, log *zap.Logger) *bcb.CachedRateSource {
	return bcb.NewCachedRateSource(bcb.NewClient(cfg), client, log)
}
