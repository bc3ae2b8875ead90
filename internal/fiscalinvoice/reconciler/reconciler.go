// Package reconciler polls the gateway for invoices whose webhook
// confirmation never arrived.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
)

// minAge keeps the poller off invoices the webhook is probably still
// about to confirm.
const minAge = 5 * time.Minute

type Params struct {
	fx.In

	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
	Repo  fiscaldomain.Repository
	Svc   fiscaldomain.Service
}

type Reconciler struct {
	log   *zap.Logger
	clock clock.Clock
	repo  fiscaldomain.Repository
	svc   fiscaldomain.Service

	interval  time.Duration
	batchSize int
}

func New(p Params) *Reconciler {
	return &Reconciler{
		log:       p.Log.Named("fiscalinvoice.reconciler"),
		clock:     p.Clock,
		repo:      p.Repo,
		svc:       p.Svc,
		interval:  p.Cfg.Fiscal.StatusSyncInterval,
		batchSize: p.Cfg.Fiscal.StatusSyncBatchSize,
	}
}

// RunForever polls until the context is cancelled.
func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles one batch of unresolved invoices. Per-invoice
// failures are logged and skipped so one bad reference cannot stall
// the rest of the batch.
func (r *Reconciler) RunOnce(ctx context.Context) {
	cutoff := r.clock.Now().Add(-minAge)
	invoices, err := r.repo.ListUnresolved(ctx, cutoff, r.batchSize)
	if err != nil {
		r.log.Error("failed to list unresolved invoices", zap.Error(err))
		return
	}

	for _, invoice := range invoices {
		if _, err := r.svc.SyncStatus(ctx, invoice.Reference); err != nil {
			r.log.Warn("status sync failed",
				zap.String("reference", invoice.Reference),
				zap.Error(err),
			)
		}
	}
}

var Module = fx.Module("fiscalinvoice.reconciler",
	fx.Provide(New),
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, cfg config.Config, rec *Reconciler) {
	if cfg.Fiscal.StatusSyncInterval <= 0 {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go rec.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
