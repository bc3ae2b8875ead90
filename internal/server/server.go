// Package server exposes the HTTP surface: tax profile management,
// fiscal invoice issuance and the NFS-e webhook endpoint.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/notahub/notahub/internal/config"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
	"github.com/notahub/notahub/internal/fiscalinvoice/webhook"
	"github.com/notahub/notahub/internal/observability"
	obsmiddleware "github.com/notahub/notahub/internal/observability/logger"
	obsmetrics "github.com/notahub/notahub/internal/observability/metrics"
	obstracing "github.com/notahub/notahub/internal/observability/tracing"
	referencedomain "github.com/notahub/notahub/internal/reference/domain"
	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	taxProfileSvc taxprofiledomain.Service
	invoiceSvc    fiscaldomain.Service
	webhookSvc    webhook.Service
	refrepo       referencedomain.Repository
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	TaxProfileSvc taxprofiledomain.Service
	InvoiceSvc    fiscaldomain.Service
	WebhookSvc    webhook.Service
	Refrepo       referencedomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		taxProfileSvc: p.TaxProfileSvc,
		invoiceSvc:    p.InvoiceSvc,
		webhookSvc:    p.WebhookSvc,
		refrepo:       p.Refrepo,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	profiles := v1.Group("/tax-profiles")
	{
		profiles.PUT("/:userId", s.UpsertTaxProfile)
		profiles.GET("/:userId", s.GetTaxProfile)
		profiles.DELETE("/:userId", s.DeleteTaxProfile)
	}

	invoices := v1.Group("/fiscal-invoices")
	{
		invoices.POST("/subscription", s.IssueSubscriptionInvoice)
		invoices.POST("/credits", s.IssueCreditInvoice)
		invoices.GET("", s.ListInvoices)
		invoices.GET("/:reference", s.GetInvoice)
		invoices.POST("/:reference/sync", s.SyncInvoice)
		invoices.POST("/:reference/cancel", s.CancelInvoice)
	}

	v1.GET("/municipalities", s.ListMunicipalities)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/nfse", s.HandleFiscalWebhook)
}

// classifyErrorForLog tags request logs with a coarse error category so
// auth probes and client mistakes do not page anyone.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case errors.Is(err, fiscaldomain.ErrInvalidSignature):
		return "auth", "invalid_webhook_signature"
	case errors.Is(err, fiscaldomain.ErrNotFound),
		errors.Is(err, taxprofiledomain.ErrNotFound):
		return "client", "not_found"
	case errors.Is(err, fiscaldomain.ErrTaxProfileMissing):
		return "client", "tax_profile_missing"
	default:
		return "server", "internal"
	}
}
