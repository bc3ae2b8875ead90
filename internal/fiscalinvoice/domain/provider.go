package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest is a submission to the tax authority gateway.
type CreateInvoiceRequest struct {
	ExternalReference  string
	Tomador            Tomador
	ServiceDescription string
	ValueBRL           decimal.Decimal
	TaxRate            decimal.Decimal
}

// CancelInvoiceRequest carries the municipal cancellation code and the
// operator-supplied reason.
type CancelInvoiceRequest struct {
	Code   string
	Reason string
}

// ProviderInvoice is the gateway's view of an invoice. Reference is the
// provider-assigned identifier; Status is already mapped onto the
// closed status set.
type ProviderInvoice struct {
	Reference     string
	Status        InvoiceStatus
	InvoiceNumber *string
	PDFURL        *string
	XMLURL        *string
	ErrorMessage  *string
	CancelledAt   *time.Time
}

// Provider is the outbound port to the NFS-e gateway. Rejections come
// back as errors carrying the gateway's message verbatim.
type Provider interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*ProviderInvoice, error)
	GetInvoice(ctx context.Context, reference string) (*ProviderInvoice, error)
	CancelInvoice(ctx context.Context, reference string, req CancelInvoiceRequest) (*ProviderInvoice, error)
}
