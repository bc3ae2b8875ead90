package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/notahub/notahub/pkg/db/pagination"
)

// IssueSubscriptionParams describes a captured subscription payment.
// SubscriptionRef is the processor's recurring-contract identifier and
// anchors the deterministic external reference; ChargeRef and
// PaymentIntentRef feed the settlement lookup.
type IssueSubscriptionParams struct {
	UserID   snowflake.ID
	Email    string
	PlanName string

	Amount       decimal.Decimal
	CurrencyCode string

	SubscriptionRef  string
	ChargeRef        string
	PaymentIntentRef string
}

// IssueCreditParams describes a one-off credit purchase. PaymentRef is
// the processor's payment identifier anchoring the external reference.
type IssueCreditParams struct {
	UserID      snowflake.ID
	Email       string
	Description string

	Amount       decimal.Decimal
	CurrencyCode string

	PaymentRef       string
	ChargeRef        string
	PaymentIntentRef string
}

// Service drives the invoice lifecycle: issuance, polling, listing and
// cancellation. State transitions funnel through the reconciler so the
// webhook and the poll path apply identical logic.
type Service interface {
	IssueForSubscriptionPayment(ctx context.Context, params IssueSubscriptionParams) (*FiscalInvoice, error)
	IssueForCreditPurchase(ctx context.Context, params IssueCreditParams) (*FiscalInvoice, error)

	Get(ctx context.Context, reference string) (*FiscalInvoice, error)
	List(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*FiscalInvoice, *pagination.PageInfo, error)

	// SyncStatus polls the gateway and applies the resulting update
	// through the same transition rules the webhook uses.
	SyncStatus(ctx context.Context, reference string) (*FiscalInvoice, error)

	Cancel(ctx context.Context, reference, reason string) (*FiscalInvoice, error)
}
