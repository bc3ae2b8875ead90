package bcb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	currencydomain "github.com/notahub/notahub/internal/currency/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateCacheTTL = 24 * time.Hour

// CachedRateSource wraps a rate source with a redis cache keyed on
// (currency, date). Cache failures degrade to a direct fetch; they
// never fail the conversion.
type CachedRateSource struct {
	source currencydomain.RateSource
	client *redis.Client
	log    *zap.Logger
}

func NewCachedRateSource(source currencydomain.RateSource, client *redis.Client, log *zap.Logger) *CachedRateSource {
	return &CachedRateSource{
		source: source,
		client: client,
		log:    log.Named("bcb.cache"),
	}
}

func (c *CachedRateSource) GetDailyRate(ctx context.Context, currencyCode string, date time.Time) (*currencydomain.DailyRate, error) {
	if c.client == nil {
		return c.source.GetDailyRate(ctx, currencyCode, date)
	}

	key := cacheKey(currencyCode, date)
	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var rate currencydomain.DailyRate
		if jsonErr := json.Unmarshal(cached, &rate); jsonErr == nil {
			return &rate, nil
		}
	} else if err != redis.Nil {
		c.log.Warn("rate cache read failed", zap.String("key", key), zap.Error(err))
	}

	rate, err := c.source.GetDailyRate(ctx, currencyCode, date)
	if err != nil || rate == nil {
		return rate, err
	}

	if encoded, jsonErr := json.Marshal(rate); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, encoded, rateCacheTTL).Err(); setErr != nil {
			c.log.Warn("rate cache write failed", zap.String("key", key), zap.Error(setErr))
		}
	}
	return rate, nil
}

func cacheKey(currencyCode string, date time.Time) string {
	return fmt.Sprintf("ptax:%s:%s", currencyCode, date.Format("2006-01-02"))
}
