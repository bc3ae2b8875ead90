package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/notahub/notahub/pkg/db/pagination"
)

// Repository persists fiscal invoices. Lookups return (nil, nil) when
// no row matches.
type Repository interface {
	Insert(ctx context.Context, invoice *FiscalInvoice) error
	FindByReference(ctx context.Context, reference string) (*FiscalInvoice, error)
	FindByExternalReference(ctx context.Context, externalReference string) (*FiscalInvoice, error)
	ListByUser(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*FiscalInvoice, error)

	// ListUnresolved returns invoices still pending or processing that
	// were created before the cutoff, oldest first.
	ListUnresolved(ctx context.Context, before time.Time, limit int) ([]*FiscalInvoice, error)

	// ApplyStatusUpdate reconciles one notification inside a single
	// transaction with the row locked. Returns the updated invoice, or
	// (nil, nil) when the reference is unknown.
	ApplyStatusUpdate(ctx context.Context, reference string, update StatusUpdate, at time.Time) (*FiscalInvoice, error)
}
