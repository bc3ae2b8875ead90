package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Resolver converts payment amounts into BRL through the source cascade.
type Resolver interface {
	Convert(ctx context.Context, req ConvertRequest) (*ConversionResult, error)
}

// ConvertRequest carries the captured payment and optional processor
// transaction identifiers enabling the settlement lookup.
type ConvertRequest struct {
	Amount       decimal.Decimal
	CurrencyCode string

	ChargeRef        string
	PaymentIntentRef string
}

// SettlementLookup queries the payment processor for the settlement
// record of a charge. A (nil, nil) return means no settlement exists,
// which is source exhaustion rather than an error.
type SettlementLookup interface {
	GetSettlement(ctx context.Context, chargeRef, paymentIntentRef string) (*Settlement, error)
}

// RateSource returns the official quotation for a currency on a date.
// A (nil, nil) return means no quote was published for that day.
type RateSource interface {
	GetDailyRate(ctx context.Context, currencyCode string, date time.Time) (*DailyRate, error)
}
