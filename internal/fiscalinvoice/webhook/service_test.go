package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
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
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/internal/fiscalinvoice/repository"
)

const testSecret = "whsec_nfse_test"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookFixture struct {
	db    *gorm.DB
	svc   Service
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newWebhookFixture(t *testing.T, secret string) *webhookFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&fiscaldomain.FiscalInvoice{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, _ := snowflake.NewNode(1)
	fake := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repository.NewRepository(db),
		Cfg: config.Config{
			NFSe: config.NFSeConfig{WebhookSecret: secret},
		},
	})

	return &webhookFixture{db: db, svc: svc, clock: fake, node: node}
}

func (f *webhookFixture) seedInvoice(t *testing.T, reference string, status fiscaldomain.InvoiceStatus) *fiscaldomain.FiscalInvoice {
	t.Helper()
	invoice := &fiscaldomain.FiscalInvoice{
		ID:                 f.node.Generate(),
		UserID:             f.node.Generate(),
		TaxProfileID:       f.node.Generate(),
		Reference:          reference,
		ExternalReference:  "user_1_sub_" + reference,
		TransactionType:    fiscaldomain.TransactionSubscription,
		Status:             status,
		CustomerName:       "Empresa Exemplo Ltda",
		CustomerEmail:      "fiscal@exemplo.com.br",
		CustomerCountry:    "BR",
		ServiceDescription: "Assinatura de software - plano Pro",
		AmountBRL:          decimal.RequireFromString("297.00"),
		TaxRate:            decimal.RequireFromString("0.02"),
		TaxValueBRL:        decimal.RequireFromString("5.94"),
		OriginalAmount:     decimal.RequireFromString("55.00"),
		OriginalCurrency:   "USD",
		ExchangeRate:       decimal.RequireFromString("5.40"),
		ConversionSource:   "official_rate",
		RateTimestamp:      f.clock.Now(),
		CreatedAt:          f.clock.Now(),
		UpdatedAt:          f.clock.Now(),
	}
	if err := f.db.Create(invoice).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return invoice
}

func (f *webhookFixture) reload(t *testing.T, reference string) *fiscaldomain.FiscalInvoice {
	t.Helper()
	var invoice fiscaldomain.FiscalInvoice
	if err := f.db.Where("reference = ?", reference).Take(&invoice).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	return &invoice
}

func TestHandleNotification_AuthorizedSetsIssuedAtOnce(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusProcessing)

	body := []byte(`{"event":"nfse.status_changed","reference":"nfse_ref_1","status":"authorized","nfse_number":"2025000123","pdf_url":"https://nfse.example/a.pdf","xml_url":"https://nfse.example/a.xml"}`)
	err := f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
	assert.NoError(t, err)

	got := f.reload(t, "nfse_ref_1")
	assert.Equal(t, fiscaldomain.StatusAuthorized, got.Status)
	if assert.NotNil(t, got.IssuedAt) {
		assert.True(t, got.IssuedAt.Equal(f.clock.Now()))
	}
	firstIssuedAt := *got.IssuedAt

	// A replayed delivery keeps the original issuance time.
	f.clock.Advance(2 * time.Hour)
	err = f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
	assert.NoError(t, err)

	got = f.reload(t, "nfse_ref_1")
	assert.True(t, got.IssuedAt.Equal(firstIssuedAt))
}

func TestHandleNotification_TamperedBodyRejectedWithoutSideEffects(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusProcessing)

	body := []byte(`{"reference":"nfse_ref_1","status":"authorized"}`)
	signature := sign(testSecret, body)

	tampered := make([]byte, len(body))
	copy(tampered, body)
	tampered[len(tampered)-3] ^= 0x01

	err := f.svc.HandleNotification(context.Background(), tampered, signature)
	if !errors.Is(err, fiscaldomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	got := f.reload(t, "nfse_ref_1")
	assert.Equal(t, fiscaldomain.StatusProcessing, got.Status)
	assert.Nil(t, got.IssuedAt)
}

func TestHandleNotification_MissingSignature(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	body := []byte(`{"reference":"nfse_ref_1","status":"authorized"}`)

	err := f.svc.HandleNotification(context.Background(), body, "")
	if !errors.Is(err, fiscaldomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandleNotification_UnconfiguredSecretRejectsEverything(t *testing.T) {
	f := newWebhookFixture(t, "")
	body := []byte(`{"reference":"nfse_ref_1","status":"authorized"}`)

	err := f.svc.HandleNotification(context.Background(), body, sign("anything", body))
	if !errors.Is(err, fiscaldomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestHandleNotification_UnknownReferenceIsSilentNoOp(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusProcessing)

	body := []byte(`{"reference":"nfse_ref_unknown","status":"authorized"}`)
	err := f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
	assert.NoError(t, err)

	got := f.reload(t, "nfse_ref_1")
	assert.Equal(t, fiscaldomain.StatusProcessing, got.Status)
}

func TestHandleNotification_UnknownStatusRejected(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusProcessing)

	body := []byte(`{"reference":"nfse_ref_1","status":"approved"}`)
	err := f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
	if !errors.Is(err, fiscaldomain.ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}

	got := f.reload(t, "nfse_ref_1")
	assert.Equal(t, fiscaldomain.StatusProcessing, got.Status)
}

func TestHandleNotification_PartialPayloadPreservesKnownFields(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusProcessing)

	full := []byte(`{"reference":"nfse_ref_1","status":"authorized","nfse_number":"2025000123","pdf_url":"https://nfse.example/a.pdf"}`)
	assert.NoError(t, f.svc.HandleNotification(context.Background(), full, sign(testSecret, full)))

	// A later delivery without the document URLs must not null them.
	partial := []byte(`{"reference":"nfse_ref_1","status":"authorized"}`)
	assert.NoError(t, f.svc.HandleNotification(context.Background(), partial, sign(testSecret, partial)))

	got := f.reload(t, "nfse_ref_1")
	if assert.NotNil(t, got.InvoiceNumber) {
		assert.Equal(t, "2025000123", *got.InvoiceNumber)
	}
	if assert.NotNil(t, got.PDFURL) {
		assert.Equal(t, "https://nfse.example/a.pdf", *got.PDFURL)
	}
}

func TestHandleNotification_CancelledSetsCancelledAt(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusAuthorized)

	body := []byte(`{"event":"nfse.status_changed","reference":"nfse_ref_1","status":"cancelled","cancel_reason":"valor incorreto","timestamp":"2025-03-10T14:00:00Z"}`)
	err := f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
	assert.NoError(t, err)

	got := f.reload(t, "nfse_ref_1")
	assert.Equal(t, fiscaldomain.StatusCancelled, got.Status)
	if assert.NotNil(t, got.CancelledAt) {
		assert.True(t, got.CancelledAt.Equal(f.clock.Now()))
	}
	if assert.NotNil(t, got.CancelReason) {
		assert.Equal(t, "valor incorreto", *got.CancelReason)
	}
}

func TestHandleNotification_ErrorWithoutMessageGetsDefault(t *testing.T) {
	f := newWebhookFixture(t, testSecret)
	f.seedInvoice(t, "nfse_ref_1", fiscaldomain.StatusProcessing)

	body := []byte(`{"reference":"nfse_ref_1","status":"error"}`)
	err := f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
	assert.NoError(t, err)

	got := f.reload(t, "nfse_ref_1")
	assert.Equal(t, fiscaldomain.StatusError, got.Status)
	if assert.NotNil(t, got.ErrorMessage) {
		assert.Equal(t, fiscaldomain.DefaultErrorMessage, *got.ErrorMessage)
	}
}

func TestHandleNotification_MalformedBody(t *testing.T) {
	f := newWebhookFixture(t, testSecret)

	for _, body := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"status":"authorized"}`),
	} {
		err := f.svc.HandleNotification(context.Background(), body, sign(testSecret, body))
		if !errors.Is(err, fiscaldomain.ErrInvalidPayload) {
			t.Fatalf("body %q: expected ErrInvalidPayload, got %v", body, err)
		}
	}
}
