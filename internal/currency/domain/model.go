package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies which rate source produced a conversion, in cascade
// priority order.
type Source string

const (
	// SourceProcessorBalance is the settled amount reported by the
	// payment processor, the most accurate source.
	SourceProcessorBalance Source = "processor_balance"

	// SourceOfficialRate is the central-bank published daily sell rate.
	SourceOfficialRate Source = "official_rate"

	// SourceFallbackRate is the conservative fixed table, used only when
	// every live source is unavailable.
	SourceFallbackRate Source = "fallback_rate"
)

// ConversionResult is the outcome of converting a foreign-currency amount
// into BRL, with full provenance for tax-audit traceability.
type ConversionResult struct {
	AmountBRL        decimal.Decimal
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	ExchangeRate     decimal.Decimal
	Source           Source
	RateTimestamp    time.Time

	// AuditText is persisted verbatim into the invoice service
	// description; it is never recomputed after issuance.
	AuditText string

	ProcessorFeesBRL *decimal.Decimal
	ProcessorNetBRL  *decimal.Decimal
}

// Settlement is the processor's record of what actually settled for a
// charge, denominated in BRL.
type Settlement struct {
	GrossBRL decimal.Decimal
	FeeBRL   decimal.Decimal
	NetBRL   decimal.Decimal

	// OriginalCurrency and ExchangeRate describe the charge before
	// settlement: rate = gross BRL ÷ gross original-currency amount.
	OriginalCurrency string
	ExchangeRate     decimal.Decimal

	SettledAt time.Time
}

// DailyRate is one day's central-bank quotation for a currency against BRL.
type DailyRate struct {
	BuyRate   decimal.Decimal
	SellRate  decimal.Decimal
	QuoteDate time.Time
}
