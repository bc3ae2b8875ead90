package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	currencydomain "github.com/notahub/notahub/internal/currency/domain"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/internal/observability/metrics"
	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
	"github.com/notahub/notahub/pkg/db/pagination"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Cfg      config.Config
	GenID    *snowflake.Node
	Repo     fiscaldomain.Repository
	Profiles taxprofiledomain.Repository
	Currency currencydomain.Resolver
	Provider fiscaldomain.Provider
	Metrics  *metrics.Metrics `optional:"true"`
}

type service struct {
	log      *zap.Logger
	clock    clock.Clock
	genID    *snowflake.Node
	repo     fiscaldomain.Repository
	profiles taxprofiledomain.Repository
	currency currencydomain.Resolver
	provider fiscaldomain.Provider
	metrics  *metrics.Metrics

	issRate    decimal.Decimal
	cancelCode string
}

func NewService(p Params) fiscaldomain.Service {
	return &service{
		log:        p.Log.Named("fiscalinvoice.service"),
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		profiles:   p.Profiles,
		currency:   p.Currency,
		provider:   p.Provider,
		metrics:    p.Metrics,
		issRate:    p.Cfg.Fiscal.ISSRate,
		cancelCode: p.Cfg.Fiscal.CancelDefaultCode,
	}
}

// issuance carries the per-transaction-type pieces into the shared
// issue pipeline.
type issuance struct {
	transactionType   fiscaldomain.TransactionType
	userID            snowflake.ID
	email             string
	serviceLine       string
	externalReference string
	convert           currencydomain.ConvertRequest
}

func (s *service) IssueForSubscriptionPayment(ctx context.Context, params fiscaldomain.IssueSubscriptionParams) (*fiscaldomain.FiscalInvoice, error) {
	if strings.TrimSpace(params.SubscriptionRef) == "" {
		return nil, fiscaldomain.ErrMissingReference
	}

	plan := strings.TrimSpace(params.PlanName)
	if plan == "" {
		plan = "assinatura"
	}
	return s.issue(ctx, issuance{
		transactionType:   fiscaldomain.TransactionSubscription,
		userID:            params.UserID,
		email:             params.Email,
		serviceLine:       fmt.Sprintf("Assinatura de software - plano %s", plan),
		externalReference: fmt.Sprintf("user_%s_sub_%s", params.UserID, params.SubscriptionRef),
		convert: currencydomain.ConvertRequest{
			Amount:           params.Amount,
			CurrencyCode:     params.CurrencyCode,
			ChargeRef:        params.ChargeRef,
			PaymentIntentRef: params.PaymentIntentRef,
		},
	})
}

func (s *service) IssueForCreditPurchase(ctx context.Context, params fiscaldomain.IssueCreditParams) (*fiscaldomain.FiscalInvoice, error) {
	if strings.TrimSpace(params.PaymentRef) == "" {
		return nil, fiscaldomain.ErrMissingReference
	}

	line := "Compra de créditos"
	if desc := strings.TrimSpace(params.Description); desc != "" {
		line = fmt.Sprintf("Compra de créditos - %s", desc)
	}
	return s.issue(ctx, issuance{
		transactionType:   fiscaldomain.TransactionCreditPurchase,
		userID:            params.UserID,
		email:             params.Email,
		serviceLine:       line,
		externalReference: fmt.Sprintf("user_%s_credits_%s", params.UserID, params.PaymentRef),
		convert: currencydomain.ConvertRequest{
			Amount:           params.Amount,
			CurrencyCode:     params.CurrencyCode,
			ChargeRef:        params.ChargeRef,
			PaymentIntentRef: params.PaymentIntentRef,
		},
	})
}

// issue runs the full pipeline: profile gate, replay check, currency
// resolution, submission, local persistence. The profile gate runs
// before any outbound call so an incomplete profile costs nothing.
func (s *service) issue(ctx context.Context, in issuance) (*fiscaldomain.FiscalInvoice, error) {
	if !in.convert.Amount.IsPositive() {
		return nil, fiscaldomain.ErrAmountNotPositive
	}

	profile, err := s.profiles.FindByUserID(ctx, in.userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		s.recordFailure(ctx, in.transactionType, "tax_profile_missing")
		return nil, fiscaldomain.ErrTaxProfileMissing
	}
	if err := profile.Validate(); err != nil {
		s.recordFailure(ctx, in.transactionType, "tax_profile_invalid")
		return nil, err
	}

	// Same taxable event seen before; the stored invoice is the answer.
	if existing, err := s.repo.FindByExternalReference(ctx, in.externalReference); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	conversion, err := s.currency.Convert(ctx, in.convert)
	if err != nil {
		return nil, err
	}

	tomador := fiscaldomain.BuildTomador(profile, in.email)
	tomadorSnapshot, err := json.Marshal(tomador)
	if err != nil {
		return nil, err
	}

	description := buildServiceDescription(in.serviceLine, conversion)
	submitted, err := s.provider.CreateInvoice(ctx, fiscaldomain.CreateInvoiceRequest{
		ExternalReference:  in.externalReference,
		Tomador:            tomador,
		ServiceDescription: description,
		ValueBRL:           conversion.AmountBRL,
		TaxRate:            s.issRate,
	})
	if err != nil {
		s.recordFailure(ctx, in.transactionType, "provider_rejected")
		return nil, err
	}

	now := s.clock.Now()
	invoice := &fiscaldomain.FiscalInvoice{
		ID:                s.genID.Generate(),
		UserID:            in.userID,
		TaxProfileID:      profile.ID,
		Reference:         submitted.Reference,
		ExternalReference: in.externalReference,
		TransactionType:   in.transactionType,
		Status:            submitted.Status,

		CustomerName:    profile.LegalName,
		CustomerEmail:   strings.TrimSpace(in.email),
		CustomerCountry: strings.ToUpper(profile.Country),

		ServiceDescription: description,
		TomadorPayload:     tomadorSnapshot,
		InvoiceNumber:      submitted.InvoiceNumber,
		PDFURL:             submitted.PDFURL,
		XMLURL:             submitted.XMLURL,
		ErrorMessage:       submitted.ErrorMessage,

		AmountBRL:   conversion.AmountBRL,
		TaxRate:     s.issRate,
		TaxValueBRL: conversion.AmountBRL.Mul(s.issRate).Round(2),

		OriginalAmount:   conversion.OriginalAmount,
		OriginalCurrency: conversion.OriginalCurrency,
		ExchangeRate:     conversion.ExchangeRate,
		ConversionSource: string(conversion.Source),
		RateTimestamp:    conversion.RateTimestamp,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if doc := profile.Document(); doc != "" {
		invoice.CustomerDocument = &doc
	}
	if submitted.Status == fiscaldomain.StatusAuthorized {
		issuedAt := now
		invoice.IssuedAt = &issuedAt
	}

	if err := s.repo.Insert(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info("fiscal invoice submitted",
		zap.String("reference", invoice.Reference),
		zap.String("external_reference", invoice.ExternalReference),
		zap.String("transaction_type", string(invoice.TransactionType)),
		zap.String("status", string(invoice.Status)),
		zap.String("amount_brl", invoice.AmountBRL.StringFixed(2)),
		zap.String("conversion_source", invoice.ConversionSource),
	)
	s.metrics.RecordInvoiceIssued(ctx, string(invoice.TransactionType), string(invoice.Status))
	return invoice, nil
}

func (s *service) Get(ctx context.Context, reference string) (*fiscaldomain.FiscalInvoice, error) {
	invoice, err := s.repo.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, fiscaldomain.ErrNotFound
	}
	return invoice, nil
}

func (s *service) List(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*fiscaldomain.FiscalInvoice, *pagination.PageInfo, error) {
	if p.PageSize <= 0 {
		p.PageSize = 10
	}

	invoices, err := s.repo.ListByUser(ctx, userID, p)
	if err != nil {
		return nil, nil, err
	}

	var encodeErr error
	pageInfo := pagination.BuildCursorPageInfo(invoices, p.PageSize, func(inv *fiscaldomain.FiscalInvoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: inv.ID.String()})
		if err != nil {
			encodeErr = err
			return ""
		}
		return token
	})
	if encodeErr != nil {
		return nil, nil, encodeErr
	}
	if len(invoices) > p.PageSize {
		invoices = invoices[:p.PageSize]
	}
	return invoices, pageInfo, nil
}

func (s *service) SyncStatus(ctx context.Context, reference string) (*fiscaldomain.FiscalInvoice, error) {
	invoice, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}

	remote, err := s.provider.GetInvoice(ctx, invoice.Reference)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.ApplyStatusUpdate(ctx, invoice.Reference, fiscaldomain.StatusUpdate{
		Status:        remote.Status,
		InvoiceNumber: remote.InvoiceNumber,
		PDFURL:        remote.PDFURL,
		XMLURL:        remote.XMLURL,
		ErrorMessage:  remote.ErrorMessage,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fiscaldomain.ErrNotFound
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, reference, reason string) (*fiscaldomain.FiscalInvoice, error) {
	invoice, err := s.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if invoice.Status == fiscaldomain.StatusCancelled {
		return invoice, nil
	}

	if _, err := s.provider.CancelInvoice(ctx, invoice.Reference, fiscaldomain.CancelInvoiceRequest{
		Code:   s.cancelCode,
		Reason: reason,
	}); err != nil {
		return nil, err
	}

	update := fiscaldomain.StatusUpdate{Status: fiscaldomain.StatusCancelled}
	if r := strings.TrimSpace(reason); r != "" {
		update.CancelReason = &r
	}

	updated, err := s.repo.ApplyStatusUpdate(ctx, invoice.Reference, update, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fiscaldomain.ErrNotFound
	}

	s.log.Info("fiscal invoice cancelled",
		zap.String("reference", updated.Reference),
	)
	return updated, nil
}

func (s *service) recordFailure(ctx context.Context, t fiscaldomain.TransactionType, reason string) {
	s.metrics.RecordInvoiceFailure(ctx, string(t), reason)
}

// buildServiceDescription composes the municipal service discrimination
// text. The conversion audit line is embedded verbatim; it is the legal
// record of how the BRL value was derived.
func buildServiceDescription(serviceLine string, conversion *currencydomain.ConversionResult) string {
	return serviceLine + "\n" + conversion.AuditText
}
