package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/pkg/db/pagination"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) fiscaldomain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, invoice *fiscaldomain.FiscalInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*fiscaldomain.FiscalInvoice, error) {
	return r.findOne(ctx, "reference = ?", reference)
}

func (r *repository) FindByExternalReference(ctx context.Context, externalReference string) (*fiscaldomain.FiscalInvoice, error) {
	return r.findOne(ctx, "external_reference = ?", externalReference)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*fiscaldomain.FiscalInvoice, error) {
	var invoice fiscaldomain.FiscalInvoice
	err := r.db.WithContext(ctx).
		Where(query, arg).
		Take(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*fiscaldomain.FiscalInvoice, error) {
	tx := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(p.PageSize + 1)

	if p.PageToken != "" {
		cursor, err := pagination.DecodeCursor(p.PageToken)
		if err != nil {
			return nil, err
		}
		if cursor.ID != "" {
			tx = tx.Where("id < ?", cursor.ID)
		}
	}

	var invoices []*fiscaldomain.FiscalInvoice
	if err := tx.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repository) ListUnresolved(ctx context.Context, before time.Time, limit int) ([]*fiscaldomain.FiscalInvoice, error) {
	var invoices []*fiscaldomain.FiscalInvoice
	err := r.db.WithContext(ctx).
		Where("status IN ?", []fiscaldomain.InvoiceStatus{fiscaldomain.StatusPending, fiscaldomain.StatusProcessing}).
		Where("created_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// ApplyStatusUpdate runs the reconciliation transition in one
// transaction with the row locked, so concurrent deliveries for the
// same reference serialize. Timestamps are first-write-wins: issued_at
// and cancelled_at are set once and never moved by replays.
func (r *repository) ApplyStatusUpdate(ctx context.Context, reference string, update fiscaldomain.StatusUpdate, at time.Time) (*fiscaldomain.FiscalInvoice, error) {
	var updated *fiscaldomain.FiscalInvoice
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("reference = ?", reference)
		// sqlite has no row locks and serializes writers on its own.
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var invoice fiscaldomain.FiscalInvoice
		err := q.Take(&invoice).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		invoice.Status = update.Status
		if update.InvoiceNumber != nil {
			invoice.InvoiceNumber = update.InvoiceNumber
		}
		if update.PDFURL != nil {
			invoice.PDFURL = update.PDFURL
		}
		if update.XMLURL != nil {
			invoice.XMLURL = update.XMLURL
		}

		switch update.Status {
		case fiscaldomain.StatusAuthorized:
			if invoice.IssuedAt == nil {
				issuedAt := at
				invoice.IssuedAt = &issuedAt
			}
		case fiscaldomain.StatusCancelled:
			if invoice.CancelledAt == nil {
				cancelledAt := at
				invoice.CancelledAt = &cancelledAt
			}
			if update.CancelReason != nil {
				invoice.CancelReason = update.CancelReason
			}
		case fiscaldomain.StatusError:
			if update.ErrorMessage != nil {
				invoice.ErrorMessage = update.ErrorMessage
			} else if invoice.ErrorMessage == nil {
				msg := fiscaldomain.DefaultErrorMessage
				invoice.ErrorMessage = &msg
			}
		}

		invoice.UpdatedAt = at
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		updated = &invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
