package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	invoicesIssued  metric.Int64Counter
	conversions     metric.Int64Counter
	webhookEvents   metric.Int64Counter
	invoiceFailures metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "notahub"
	}
	meter := provider.Meter(name)

	invoicesIssued, err := meter.Int64Counter("notahub_fiscal_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	conversions, err := meter.Int64Counter("notahub_currency_conversions_total")
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("notahub_fiscal_webhook_events_total")
	if err != nil {
		return nil, err
	}
	invoiceFailures, err := meter.Int64Counter("notahub_fiscal_invoice_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesIssued:  invoicesIssued,
		conversions:     conversions,
		webhookEvents:   webhookEvents,
		invoiceFailures: invoiceFailures,
	}, nil
}

// RecordInvoiceIssued increments issued invoice counts.
func (m *Metrics) RecordInvoiceIssued(ctx context.Context, transactionType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("transaction_type", strings.TrimSpace(transactionType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.invoicesIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConversion increments currency conversion counts per source.
// fallback_rate usage shows up here for alerting.
func (m *Metrics) RecordConversion(ctx context.Context, source, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("currency", strings.TrimSpace(currency)),
	)
	m.conversions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookEvent increments reconciler outcomes.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceFailure increments issuance failure counts.
func (m *Metrics) RecordInvoiceFailure(ctx context.Context, transactionType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("transaction_type", strings.TrimSpace(transactionType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.invoiceFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"transaction_type": {},
	"status":           {},
	"status_code":      {},
	"source":           {},
	"currency":         {},
	"result":           {},
	"reason":           {},
	"endpoint":         {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
