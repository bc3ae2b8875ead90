package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/pkg/db/pagination"
)

type repoStub struct {
	unresolved []*fiscaldomain.FiscalInvoice
	gotBefore  time.Time
	gotLimit   int
}

func (r *repoStub) Insert(ctx context.Context, invoice *fiscaldomain.FiscalInvoice) error {
	return nil
}

func (r *repoStub) FindByReference(ctx context.Context, reference string) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func (r *repoStub) FindByExternalReference(ctx context.Context, externalReference string) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func (r *repoStub) ListByUser(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func (r *repoStub) ListUnresolved(ctx context.Context, before time.Time, limit int) ([]*fiscaldomain.FiscalInvoice, error) {
	r.gotBefore = before
	r.gotLimit = limit
	return r.unresolved, nil
}

func (r *repoStub) ApplyStatusUpdate(ctx context.Context, reference string, update fiscaldomain.StatusUpdate, at time.Time) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

type syncStub struct {
	synced  []string
	failRef string
}

func (s *syncStub) IssueForSubscriptionPayment(ctx context.Context, params fiscaldomain.IssueSubscriptionParams) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func (s *syncStub) IssueForCreditPurchase(ctx context.Context, params fiscaldomain.IssueCreditParams) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func (s *syncStub) Get(ctx context.Context, reference string) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func (s *syncStub) List(ctx context.Context, userID snowflake.ID, p pagination.Pagination) ([]*fiscaldomain.FiscalInvoice, *pagination.PageInfo, error) {
	return nil, nil, nil
}

func (s *syncStub) SyncStatus(ctx context.Context, reference string) (*fiscaldomain.FiscalInvoice, error) {
	if reference == s.failRef {
		return nil, errors.New("gateway unavailable")
	}
	s.synced = append(s.synced, reference)
	return nil, nil
}

func (s *syncStub) Cancel(ctx context.Context, reference, reason string) (*fiscaldomain.FiscalInvoice, error) {
	return nil, nil
}

func TestRunOnce_SyncsUnresolvedBatch(t *testing.T) {
	fixed := clock.At(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	repo := &repoStub{unresolved: []*fiscaldomain.FiscalInvoice{
		{Reference: "nfse_ref_1"},
		{Reference: "nfse_ref_2"},
		{Reference: "nfse_ref_3"},
	}}
	svc := &syncStub{failRef: "nfse_ref_2"}

	rec := New(Params{
		Log:   zap.NewNop(),
		Clock: fixed,
		Repo:  repo,
		Svc:   svc,
		Cfg: config.Config{
			Fiscal: config.FiscalConfig{
				StatusSyncInterval:  time.Minute,
				StatusSyncBatchSize: 25,
			},
		},
	})
	rec.RunOnce(context.Background())

	if !repo.gotBefore.Equal(fixed.Now().Add(-minAge)) {
		t.Fatalf("cutoff should exclude freshly issued invoices, got %v", repo.gotBefore)
	}
	if repo.gotLimit != 25 {
		t.Fatalf("expected batch size 25, got %d", repo.gotLimit)
	}

	// One failing reference must not stop the rest of the batch.
	if len(svc.synced) != 2 || svc.synced[0] != "nfse_ref_1" || svc.synced[1] != "nfse_ref_3" {
		t.Fatalf("expected the other references synced, got %v", svc.synced)
	}
}
