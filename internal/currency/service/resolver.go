package service

import (
	"context"
	"strings"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	currencydomain "github.com/notahub/notahub/internal/currency/domain"
	"github.com/notahub/notahub/internal/observability/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Cfg         config.Config
	Settlements currencydomain.SettlementLookup `optional:"true"`
	Rates       currencydomain.RateSource       `optional:"true"`
	Metrics     *metrics.Metrics                `optional:"true"`
}

type resolver struct {
	log         *zap.Logger
	clock       clock.Clock
	settlements currencydomain.SettlementLookup
	rates       currencydomain.RateSource
	metrics     *metrics.Metrics

	lookbackDays  int
	fallbackRates map[string]decimal.Decimal
	fallbackDef   decimal.Decimal
}

func NewResolver(p Params) currencydomain.Resolver {
	return &resolver{
		log:           p.Log.Named("currency.resolver"),
		clock:         p.Clock,
		settlements:   p.Settlements,
		rates:         p.Rates,
		metrics:       p.Metrics,
		lookbackDays:  p.Cfg.Fiscal.RateLookbackDays,
		fallbackRates: p.Cfg.Fiscal.FallbackRates,
		fallbackDef:   p.Cfg.Fiscal.DefaultFallbackRate,
	}
}

// Convert resolves a BRL amount by trying, in order: the processor's
// settlement record, the official daily sell rate (walking back up to
// the configured number of days), and the conservative fallback table.
// Source exhaustion is expected and never an error; the fallback table
// guarantees a result.
func (r *resolver) Convert(ctx context.Context, req currencydomain.ConvertRequest) (*currencydomain.ConversionResult, error) {
	code := strings.ToUpper(strings.TrimSpace(req.CurrencyCode))

	if code == "BRL" {
		return r.record(ctx, r.identity(req.Amount)), nil
	}

	if result := r.fromSettlement(ctx, req, code); result != nil {
		return r.record(ctx, result), nil
	}
	if result := r.fromOfficialRate(ctx, req.Amount, code); result != nil {
		return r.record(ctx, result), nil
	}
	return r.record(ctx, r.fromFallback(req.Amount, code)), nil
}

func (r *resolver) identity(amount decimal.Decimal) *currencydomain.ConversionResult {
	one := decimal.NewFromInt(1)
	zero := decimal.Zero
	result := &currencydomain.ConversionResult{
		AmountBRL:        amount.Round(2),
		OriginalAmount:   amount,
		OriginalCurrency: "BRL",
		ExchangeRate:     one,
		Source:           currencydomain.SourceProcessorBalance,
		RateTimestamp:    r.clock.Now(),
		ProcessorFeesBRL: &zero,
	}
	net := amount.Round(2)
	result.ProcessorNetBRL = &net
	result.AuditText = buildAuditText(result)
	return result
}

func (r *resolver) fromSettlement(ctx context.Context, req currencydomain.ConvertRequest, code string) *currencydomain.ConversionResult {
	if r.settlements == nil {
		return nil
	}
	if strings.TrimSpace(req.ChargeRef) == "" && strings.TrimSpace(req.PaymentIntentRef) == "" {
		return nil
	}

	settlement, err := r.settlements.GetSettlement(ctx, req.ChargeRef, req.PaymentIntentRef)
	if err != nil {
		// Lookup failure is source exhaustion, not a conversion error.
		r.log.Warn("settlement lookup failed, falling through",
			zap.String("currency", code),
			zap.Error(err),
		)
		return nil
	}
	if settlement == nil {
		return nil
	}

	settledAt := settlement.SettledAt
	if settledAt.IsZero() {
		settledAt = r.clock.Now()
	}

	fees := settlement.FeeBRL.Round(2)
	net := settlement.NetBRL.Round(2)
	result := &currencydomain.ConversionResult{
		AmountBRL:        settlement.GrossBRL.Round(2),
		OriginalAmount:   req.Amount,
		OriginalCurrency: code,
		ExchangeRate:     settlement.ExchangeRate,
		Source:           currencydomain.SourceProcessorBalance,
		RateTimestamp:    settledAt,
		ProcessorFeesBRL: &fees,
		ProcessorNetBRL:  &net,
	}
	result.AuditText = buildAuditText(result)
	return result
}

func (r *resolver) fromOfficialRate(ctx context.Context, amount decimal.Decimal, code string) *currencydomain.ConversionResult {
	if r.rates == nil {
		return nil
	}

	date := r.clock.Now()
	for i := 0; i <= r.lookbackDays; i++ {
		rate, err := r.rates.GetDailyRate(ctx, code, date)
		if err != nil {
			r.log.Warn("official rate lookup failed, falling through",
				zap.String("currency", code),
				zap.Time("date", date),
				zap.Error(err),
			)
			return nil
		}
		if rate != nil {
			result := &currencydomain.ConversionResult{
				AmountBRL:        amount.Mul(rate.SellRate).Round(2),
				OriginalAmount:   amount,
				OriginalCurrency: code,
				ExchangeRate:     rate.SellRate,
				Source:           currencydomain.SourceOfficialRate,
				RateTimestamp:    rate.QuoteDate,
			}
			result.AuditText = buildAuditText(result)
			return result
		}
		// No quote published that day (weekend/holiday); try the
		// previous calendar day, bounded by the lookback window.
		date = date.AddDate(0, 0, -1)
	}
	return nil
}

func (r *resolver) fromFallback(amount decimal.Decimal, code string) *currencydomain.ConversionResult {
	rate, ok := r.fallbackRates[code]
	if !ok {
		rate = r.fallbackDef
	}

	// Fallback rates may under- or over-state tax liability, so this
	// path is always surfaced in the logs.
	r.log.Warn("using conservative fallback exchange rate",
		zap.String("currency", code),
		zap.String("rate", rate.String()),
	)

	result := &currencydomain.ConversionResult{
		AmountBRL:        amount.Mul(rate).Round(2),
		OriginalAmount:   amount,
		OriginalCurrency: code,
		ExchangeRate:     rate,
		Source:           currencydomain.SourceFallbackRate,
		RateTimestamp:    r.clock.Now(),
	}
	result.AuditText = buildAuditText(result)
	return result
}

func (r *resolver) record(ctx context.Context, result *currencydomain.ConversionResult) *currencydomain.ConversionResult {
	r.metrics.RecordConversion(ctx, string(result.Source), result.OriginalCurrency)
	return result
}
