// Package webhook reconciles NFS-e status notifications into stored
// invoices.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/notahub/notahub/internal/clock"
	"github.com/notahub/notahub/internal/config"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/internal/observability/metrics"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Fiscal-Signature"

// Notification is the gateway's status-change payload. Optional fields
// absent from a delivery leave the stored values untouched.
type Notification struct {
	Event        string  `json:"event"`
	Reference    string  `json:"reference"`
	Status       string  `json:"status"`
	Number       *string `json:"nfse_number,omitempty"`
	PDFURL       *string `json:"pdf_url,omitempty"`
	XMLURL       *string `json:"xml_url,omitempty"`
	Message      *string `json:"error_message,omitempty"`
	CancelReason *string `json:"cancel_reason,omitempty"`
	Timestamp    string  `json:"timestamp,omitempty"`
}

// Service authenticates and applies webhook deliveries.
type Service interface {
	HandleNotification(ctx context.Context, body []byte, signature string) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Cfg     config.Config
	Repo    fiscaldomain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	log     *zap.Logger
	clock   clock.Clock
	repo    fiscaldomain.Repository
	metrics *metrics.Metrics
	secret  []byte
}

func NewService(p Params) Service {
	return &service{
		log:     p.Log.Named("fiscalinvoice.webhook"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
		secret:  []byte(p.Cfg.NFSe.WebhookSecret),
	}
}

// HandleNotification verifies the signature over the raw body, then
// applies the status transition. Authentication failure happens before
// the body is even parsed, so a forged delivery has zero side effects.
func (s *service) HandleNotification(ctx context.Context, body []byte, signature string) error {
	if err := s.verifySignature(body, signature); err != nil {
		s.metrics.RecordWebhookEvent(ctx, "rejected_signature")
		return err
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.metrics.RecordWebhookEvent(ctx, "rejected_payload")
		return fiscaldomain.ErrInvalidPayload
	}
	if strings.TrimSpace(n.Reference) == "" {
		s.metrics.RecordWebhookEvent(ctx, "rejected_payload")
		return fiscaldomain.ErrInvalidPayload
	}

	status, err := fiscaldomain.ParseStatus(n.Status)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "rejected_status")
		s.log.Warn("webhook carried unknown status",
			zap.String("reference", n.Reference),
			zap.String("status", n.Status),
		)
		return err
	}

	updated, err := s.repo.ApplyStatusUpdate(ctx, n.Reference, fiscaldomain.StatusUpdate{
		Status:        status,
		InvoiceNumber: n.Number,
		PDFURL:        n.PDFURL,
		XMLURL:        n.XMLURL,
		ErrorMessage:  n.Message,
		CancelReason:  n.CancelReason,
	}, s.clock.Now())
	if err != nil {
		return err
	}
	if updated == nil {
		// References we never issued are acknowledged and dropped, so
		// the gateway does not retry them forever.
		s.metrics.RecordWebhookEvent(ctx, "ignored_unknown_reference")
		s.log.Info("webhook for unknown reference ignored",
			zap.String("reference", n.Reference),
		)
		return nil
	}

	s.metrics.RecordWebhookEvent(ctx, "applied")
	s.log.Info("webhook applied",
		zap.String("reference", updated.Reference),
		zap.String("status", string(updated.Status)),
	)
	return nil
}

func (s *service) verifySignature(body []byte, signature string) error {
	if len(s.secret) == 0 {
		// Refusing everything beats accepting unauthenticated writes
		// when the secret was never configured.
		return fiscaldomain.ErrInvalidSignature
	}
	if strings.TrimSpace(signature) == "" {
		return fiscaldomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return fiscaldomain.ErrInvalidSignature
	}
	return nil
}
