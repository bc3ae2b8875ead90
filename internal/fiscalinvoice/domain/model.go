// Package domain contains the fiscal invoice model and its ports.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents the NFS-e lifecycle states driven by the tax
// authority.
type InvoiceStatus string

const (
	StatusPending    InvoiceStatus = "pending"
	StatusProcessing InvoiceStatus = "processing"
	StatusAuthorized InvoiceStatus = "authorized"
	StatusCancelled  InvoiceStatus = "cancelled"
	StatusError      InvoiceStatus = "error"
)

// ParseStatus maps a provider status string onto the closed status set.
// Unrecognized values are rejected rather than passed through.
func ParseStatus(raw string) (InvoiceStatus, error) {
	switch InvoiceStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusAuthorized:
		return StatusAuthorized, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusError:
		return StatusError, nil
	default:
		return "", ErrUnknownStatus
	}
}

// TransactionType identifies the taxable event behind an invoice.
type TransactionType string

const (
	TransactionSubscription   TransactionType = "subscription"
	TransactionCreditPurchase TransactionType = "credit_purchase"
)

// DefaultErrorMessage is recorded when an error notification carries no
// message of its own.
const DefaultErrorMessage = "Falha no processamento da NFS-e"

// FiscalInvoice is one issued NFS-e. Identity, monetary and snapshot
// fields are fixed at creation; only the lifecycle fields mutate, and
// only through the reconciler. Rows are never deleted; cancellation is
// a state.
type FiscalInvoice struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID       snowflake.ID `gorm:"column:user_id;not null;index" json:"user_id"`
	TaxProfileID snowflake.ID `gorm:"column:tax_profile_id;not null;index" json:"tax_profile_id"`

	// Reference is the provider-assigned identifier, the join key for
	// webhook reconciliation.
	Reference string `gorm:"type:text;not null;uniqueIndex" json:"reference"`

	// ExternalReference is the deterministic identifier we hand the
	// provider, letting its idempotency absorb duplicate submissions.
	ExternalReference string `gorm:"column:external_reference;type:text;not null;uniqueIndex" json:"external_reference"`

	TransactionType TransactionType `gorm:"column:transaction_type;type:text;not null" json:"transaction_type"`
	Status          InvoiceStatus   `gorm:"type:text;not null;default:'processing'" json:"status"`

	// Customer snapshot at issuance time. Legal state of the taxable
	// event; never updated retroactively.
	CustomerName     string  `gorm:"column:customer_name;type:text;not null" json:"customer_name"`
	CustomerEmail    string  `gorm:"column:customer_email;type:text;not null" json:"customer_email"`
	CustomerCountry  string  `gorm:"column:customer_country;type:char(2);not null" json:"customer_country"`
	CustomerDocument *string `gorm:"column:customer_document;type:text" json:"customer_document,omitempty"`

	ServiceDescription string `gorm:"column:service_description;type:text;not null" json:"service_description"`

	// TomadorPayload is the exact service-taker document submitted to
	// the gateway, kept for audit.
	TomadorPayload datatypes.JSON `gorm:"column:tomador_payload;type:jsonb" json:"tomador_payload,omitempty"`

	InvoiceNumber *string `gorm:"column:invoice_number;type:text" json:"invoice_number,omitempty"`
	PDFURL        *string `gorm:"column:pdf_url;type:text" json:"pdf_url,omitempty"`
	XMLURL        *string `gorm:"column:xml_url;type:text" json:"xml_url,omitempty"`
	ErrorMessage  *string `gorm:"column:error_message;type:text" json:"error_message,omitempty"`

	AmountBRL   decimal.Decimal `gorm:"column:amount_brl;type:numeric(18,2);not null" json:"amount_brl"`
	TaxRate     decimal.Decimal `gorm:"column:tax_rate;type:numeric(8,4);not null" json:"tax_rate"`
	TaxValueBRL decimal.Decimal `gorm:"column:tax_value_brl;type:numeric(18,2);not null" json:"tax_value_brl"`

	// Currency-conversion provenance, fixed at creation.
	OriginalAmount   decimal.Decimal `gorm:"column:original_amount;type:numeric(18,2);not null" json:"original_amount"`
	OriginalCurrency string          `gorm:"column:original_currency;type:char(3);not null" json:"original_currency"`
	ExchangeRate     decimal.Decimal `gorm:"column:exchange_rate;type:numeric(18,6);not null" json:"exchange_rate"`
	ConversionSource string          `gorm:"column:conversion_source;type:text;not null" json:"conversion_source"`
	RateTimestamp    time.Time       `gorm:"column:rate_timestamp;not null" json:"rate_timestamp"`

	IssuedAt     *time.Time `gorm:"column:issued_at" json:"issued_at,omitempty"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CancelReason *string    `gorm:"column:cancel_reason;type:text" json:"cancel_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (FiscalInvoice) TableName() string { return "fiscal_invoices" }

// StatusUpdate is a reconciliation delta parsed from a webhook or a
// status poll. Optional fields overwrite stored values only when
// present; a partial payload never nulls a previously-known field.
type StatusUpdate struct {
	Status        InvoiceStatus
	InvoiceNumber *string
	PDFURL        *string
	XMLURL        *string
	ErrorMessage  *string
	CancelReason  *string
}
