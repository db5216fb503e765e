package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider installs a Prometheus-backed MeterProvider and starts Go
// runtime metrics. It returns the /metrics handler and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	if err := runtime.Start(); err != nil {
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the business counters. A nil *Metrics records nothing.
type Metrics struct {
	ordersPlaced    otelmetric.Int64Counter
	ordersCancelled otelmetric.Int64Counter
	paymentsPaid    otelmetric.Int64Counter
	stockConflicts  otelmetric.Int64Counter
}

func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.ordersPlaced, err = meter.Int64Counter("orders_placed_total",
		otelmetric.WithDescription("Orders created")); err != nil {
		return nil, err
	}
	if m.ordersCancelled, err = meter.Int64Counter("orders_cancelled_total",
		otelmetric.WithDescription("Orders cancelled with stock restored")); err != nil {
		return nil, err
	}
	if m.paymentsPaid, err = meter.Int64Counter("payments_marked_paid_total",
		otelmetric.WithDescription("Orders transitioned to paid")); err != nil {
		return nil, err
	}
	if m.stockConflicts, err = meter.Int64Counter("stock_conflicts_total",
		otelmetric.WithDescription("Order placements that lost a stock race")); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Metrics) OrderPlaced(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) OrderCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCancelled.Add(ctx, 1)
}

// PaymentMarkedPaid counts a paid transition by the entry point that caused it.
func (m *Metrics) PaymentMarkedPaid(ctx context.Context, via string) {
	if m == nil {
		return
	}
	m.paymentsPaid.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("via", via)))
}

func (m *Metrics) StockConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.stockConflicts.Add(ctx, 1)
}
