package domain

import "errors"

var (
	ErrNotFound          = errors.New("fiscal_invoice_not_found")
	ErrTaxProfileMissing = errors.New("tax_profile_missing")
	ErrUnknownStatus     = errors.New("unknown_invoice_status")
	ErrInvalidPayload    = errors.New("invalid_webhook_payload")
	ErrInvalidSignature  = errors.New("invalid_webhook_signature")
	ErrAmountNotPositive = errors.New("invoice_amount_not_positive")
	ErrMissingReference  = errors.New("missing_transaction_reference")
)

// ProviderError carries a rejection from the tax API. The message is
// surfaced to callers verbatim.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}
