package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	currencydomain "github.com/notahub/notahub/internal/currency/domain"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/internal/fiscalinvoice/repository"
	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
	taxprofilerepo "github.com/notahub/notahub/internal/taxprofile/repository"
	"github.com/notahub/notahub/pkg/db/pagination"
)

func pageRequest(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}

type resolverStub struct {
	result *currencydomain.ConversionResult
	calls  int
}

func (r *resolverStub) Convert(ctx context.Context, req currencydomain.ConvertRequest) (*currencydomain.ConversionResult, error) {
	r.calls++
	return r.result, nil
}

type providerFake struct {
	createCalls int
	cancelCalls int
	getCalls    int

	createStatus fiscaldomain.InvoiceStatus
	createErr    error
	getResult    *fiscaldomain.ProviderInvoice
	refSeq       int
}

func (p *providerFake) CreateInvoice(ctx context.Context, req fiscaldomain.CreateInvoiceRequest) (*fiscaldomain.ProviderInvoice, error) {
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.refSeq++
	return &fiscaldomain.ProviderInvoice{
		Reference: fmt.Sprintf("nfse_ref_%d", p.refSeq),
		Status:    p.createStatus,
	}, nil
}

func (p *providerFake) GetInvoice(ctx context.Context, reference string) (*fiscaldomain.ProviderInvoice, error) {
	p.getCalls++
	return p.getResult, nil
}

func (p *providerFake) CancelInvoice(ctx context.Context, reference string, req fiscaldomain.CancelInvoiceRequest) (*fiscaldomain.ProviderInvoice, error) {
	p.cancelCalls++
	return &fiscaldomain.ProviderInvoice{
		Reference: reference,
		Status:    fiscaldomain.StatusCancelled,
	}, nil
}

type fixture struct {
	db       *gorm.DB
	svc      fiscaldomain.Service
	node     *snowflake.Node
	clock    *clock.FakeClock
	provider *providerFake
	resolver *resolverStub
	profiles taxprofiledomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&taxprofiledomain.TaxProfile{}, &fiscaldomain.FiscalInvoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	provider := &providerFake{createStatus: fiscaldomain.StatusProcessing}
	rateTS := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	resolver := &resolverStub{result: &currencydomain.ConversionResult{
		AmountBRL:        decimal.RequireFromString("297.00"),
		OriginalAmount:   decimal.RequireFromString("55.00"),
		OriginalCurrency: "USD",
		ExchangeRate:     decimal.RequireFromString("5.40"),
		Source:           currencydomain.SourceOfficialRate,
		RateTimestamp:    rateTS,
		AuditText:        "Valor original: $55.00 - Cotação PTAX venda: R$ 5.4000",
	}}
	profiles := taxprofilerepo.NewRepository(db)

	svc := NewService(Params{
		Log:      zap.NewNop(),
		Clock:    fake,
		GenID:    node,
		Repo:     repository.NewRepository(db),
		Profiles: profiles,
		Currency: resolver,
		Provider: provider,
		Cfg: config.Config{
			Fiscal: config.FiscalConfig{
				ISSRate:           decimal.RequireFromString("0.02"),
				CancelDefaultCode: "2",
			},
		},
	})

	return &fixture{
		db:       db,
		svc:      svc,
		node:     node,
		clock:    fake,
		provider: provider,
		resolver: resolver,
		profiles: profiles,
	}
}

func (f *fixture) seedProfile(t *testing.T, userID snowflake.ID) *taxprofiledomain.TaxProfile {
	t.Helper()
	doc := "12345678000195"
	street, number, hood := "Av. Paulista", "1000", "Bela Vista"
	city, code, state, cep := "São Paulo", "3550308", "SP", "01310100"
	profile := &taxprofiledomain.TaxProfile{
		ID:           f.node.Generate(),
		UserID:       userID,
		Country:      "BR",
		IsBrazilian:  true,
		LegalName:    "Empresa Exemplo Ltda",
		CPFCNPJ:      &doc,
		Street:       &street,
		Number:       &number,
		Neighborhood: &hood,
		City:         &city,
		CityCode:     &code,
		State:        &state,
		PostalCode:   &cep,
	}
	if err := f.profiles.Upsert(context.Background(), profile); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

func TestIssueForSubscriptionPayment(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)

	invoice, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:          userID,
		Email:           "fiscal@exemplo.com.br",
		PlanName:        "Pro",
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
		ChargeRef:       "ch_123",
	})
	assert.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("user_%s_sub_sub_123", userID), invoice.ExternalReference)
	assert.Equal(t, "nfse_ref_1", invoice.Reference)
	assert.Equal(t, fiscaldomain.StatusProcessing, invoice.Status)
	assert.Equal(t, fiscaldomain.TransactionSubscription, invoice.TransactionType)
	assert.Nil(t, invoice.IssuedAt)
	assert.True(t, invoice.AmountBRL.Equal(decimal.RequireFromString("297.00")))
	assert.True(t, invoice.TaxValueBRL.Equal(decimal.RequireFromString("5.94")))
	assert.Equal(t, "official_rate", invoice.ConversionSource)
	assert.Contains(t, invoice.ServiceDescription, "plano Pro")
	assert.Contains(t, invoice.ServiceDescription, "Valor original: $55.00 - Cotação PTAX venda: R$ 5.4000")
	assert.Equal(t, "Empresa Exemplo Ltda", invoice.CustomerName)
	if assert.NotNil(t, invoice.CustomerDocument) {
		assert.Equal(t, "12345678000195", *invoice.CustomerDocument)
	}
}

func TestIssue_ReplaySameTaxableEvent(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)

	params := fiscaldomain.IssueSubscriptionParams{
		UserID:          userID,
		Email:           "fiscal@exemplo.com.br",
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
	}
	first, err := f.svc.IssueForSubscriptionPayment(context.Background(), params)
	assert.NoError(t, err)

	second, err := f.svc.IssueForSubscriptionPayment(context.Background(), params)
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	if f.provider.createCalls != 1 {
		t.Fatalf("replay must not resubmit, got %d provider calls", f.provider.createCalls)
	}
}

func TestIssue_MissingProfileNeverReachesProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:          f.node.Generate(),
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
	})
	if !errors.Is(err, fiscaldomain.ErrTaxProfileMissing) {
		t.Fatalf("expected ErrTaxProfileMissing, got %v", err)
	}
	if f.provider.createCalls != 0 || f.resolver.calls != 0 {
		t.Fatalf("refusal must happen before any outbound call, provider=%d resolver=%d",
			f.provider.createCalls, f.resolver.calls)
	}
}

func TestIssue_IncompleteProfileNeverReachesProvider(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	profile := f.seedProfile(t, userID)
	profile.CPFCNPJ = nil
	if err := f.profiles.Upsert(context.Background(), profile); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	_, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:          userID,
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
	})
	if !errors.Is(err, taxprofiledomain.ErrTaxDocumentRequired) {
		t.Fatalf("expected ErrTaxDocumentRequired, got %v", err)
	}
	assert.Equal(t, 0, f.provider.createCalls)
}

func TestIssueForCreditPurchase_ExternalReference(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)

	invoice, err := f.svc.IssueForCreditPurchase(context.Background(), fiscaldomain.IssueCreditParams{
		UserID:       userID,
		Email:        "fiscal@exemplo.com.br",
		Description:  "Pacote 500 créditos",
		Amount:       decimal.RequireFromString("25.00"),
		CurrencyCode: "USD",
		PaymentRef:   "pay_789",
	})
	assert.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("user_%s_credits_pay_789", userID), invoice.ExternalReference)
	assert.Equal(t, fiscaldomain.TransactionCreditPurchase, invoice.TransactionType)
	assert.Contains(t, invoice.ServiceDescription, "Pacote 500 créditos")
}

func TestIssue_MissingTransactionRef(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:       f.node.Generate(),
		Amount:       decimal.RequireFromString("10.00"),
		CurrencyCode: "USD",
	})
	if !errors.Is(err, fiscaldomain.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
}

func TestIssue_ProviderRejectionSurfacedVerbatim(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)
	f.provider.createErr = errors.New("nfse api error: RPS série inválida")

	_, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:          userID,
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
	})
	assert.EqualError(t, err, "nfse api error: RPS série inválida")

	// Nothing is persisted for a rejected submission.
	var count int64
	f.db.Model(&fiscaldomain.FiscalInvoice{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestCancel_AfterAuthorized(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)
	f.provider.createStatus = fiscaldomain.StatusAuthorized

	invoice, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:          userID,
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
	})
	assert.NoError(t, err)
	assert.NotNil(t, invoice.IssuedAt)

	f.clock.Advance(time.Hour)
	cancelled, err := f.svc.Cancel(context.Background(), invoice.Reference, "valor incorreto")
	assert.NoError(t, err)

	assert.Equal(t, fiscaldomain.StatusCancelled, cancelled.Status)
	if assert.NotNil(t, cancelled.CancelledAt) {
		assert.True(t, cancelled.CancelledAt.Equal(f.clock.Now()))
	}
	if assert.NotNil(t, cancelled.CancelReason) {
		assert.Equal(t, "valor incorreto", *cancelled.CancelReason)
	}

	// A second cancel is a no-op against the gateway.
	again, err := f.svc.Cancel(context.Background(), invoice.Reference, "outro motivo")
	assert.NoError(t, err)
	assert.Equal(t, 1, f.provider.cancelCalls)
	assert.True(t, again.CancelledAt.Equal(*cancelled.CancelledAt))
}

func TestSyncStatus_AppliesSameTransitionRules(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)

	invoice, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
		UserID:          userID,
		Amount:          decimal.RequireFromString("55.00"),
		CurrencyCode:    "USD",
		SubscriptionRef: "sub_123",
	})
	assert.NoError(t, err)

	number := "2025000123"
	f.provider.getResult = &fiscaldomain.ProviderInvoice{
		Reference:     invoice.Reference,
		Status:        fiscaldomain.StatusAuthorized,
		InvoiceNumber: &number,
	}
	f.clock.Advance(30 * time.Minute)

	synced, err := f.svc.SyncStatus(context.Background(), invoice.Reference)
	assert.NoError(t, err)

	assert.Equal(t, fiscaldomain.StatusAuthorized, synced.Status)
	if assert.NotNil(t, synced.IssuedAt) {
		assert.True(t, synced.IssuedAt.Equal(f.clock.Now()))
	}
	if assert.NotNil(t, synced.InvoiceNumber) {
		assert.Equal(t, "2025000123", *synced.InvoiceNumber)
	}
}

func TestList_CursorPagination(t *testing.T) {
	f := newFixture(t)
	userID := f.node.Generate()
	f.seedProfile(t, userID)

	for i := 0; i < 5; i++ {
		_, err := f.svc.IssueForSubscriptionPayment(context.Background(), fiscaldomain.IssueSubscriptionParams{
			UserID:          userID,
			Amount:          decimal.RequireFromString("55.00"),
			CurrencyCode:    "USD",
			SubscriptionRef: fmt.Sprintf("sub_%d", i),
		})
		assert.NoError(t, err)
	}

	page, info, err := f.svc.List(context.Background(), userID, pageRequest("", 2))
	assert.NoError(t, err)
	assert.Len(t, page, 2)
	assert.True(t, info.HasMore)

	// The next-page token must decode back to the last row of the page.
	cursor, err := pagination.DecodeCursor(info.NextPageToken)
	assert.NoError(t, err)
	assert.Equal(t, page[1].ID.String(), cursor.ID)

	rest, info2, err := f.svc.List(context.Background(), userID, pageRequest(info.NextPageToken, 10))
	assert.NoError(t, err)
	assert.Len(t, rest, 3)
	assert.False(t, info2.HasMore)

	seen := map[string]bool{}
	for _, inv := range append(page, rest...) {
		seen[inv.Reference] = true
	}
	assert.Len(t, seen, 5)
}
