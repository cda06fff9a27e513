package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/leafsii/collateral-engine/internal/calc"
)

type Metrics struct {
	HTTPRequests       metric.Int64Counter
	HTTPDuration       metric.Float64Histogram
	EngineOperations   metric.Int64Counter
	EngineDuration     metric.Float64Histogram
	DebtVolume         metric.Float64Counter
	Liquidations       metric.Int64Counter
	ActiveConnections  metric.Int64UpDownCounter
	UnhealthyPositions metric.Int64ObservableGauge

	unhealthy atomic.Int64
}

// Setup registers the instruments with the default Prometheus registry and
// installs the global meter provider.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.Handler(), nil
}

// SetupWithRegistry is Setup against a private registry, leaving global
// state alone.
func SetupWithRegistry(serviceName string, reg *promclient.Registry) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := newMetrics(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequests, err = meter.Int64Counter(
		"dsc_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"dsc_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.EngineOperations, err = meter.Int64Counter(
		"dsc_engine_operations_total",
		metric.WithDescription("Engine operations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.EngineDuration, err = meter.Float64Histogram(
		"dsc_engine_operation_duration_seconds",
		metric.WithDescription("Engine operation duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.DebtVolume, err = meter.Float64Counter(
		"dsc_debt_volume_usd_total",
		metric.WithDescription("Stable token minted and burned, in USD"),
	)
	if err != nil {
		return nil, err
	}

	m.Liquidations, err = meter.Int64Counter(
		"dsc_liquidations_total",
		metric.WithDescription("Successful liquidations by collateral asset"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveConnections, err = meter.Int64UpDownCounter(
		"dsc_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	m.UnhealthyPositions, err = meter.Int64ObservableGauge(
		"dsc_unhealthy_positions",
		metric.WithDescription("Positions below the minimum health factor at the last monitor pass"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.unhealthy.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordOperation(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	labels := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.EngineOperations.Add(ctx, 1, labels)
	m.EngineDuration.Record(ctx, elapsed.Seconds(), labels)
}

func (m *Metrics) RecordDebtVolume(ctx context.Context, direction string, amount *uint256.Int) {
	usd := calc.FromWad(amount, 18).InexactFloat64()
	m.DebtVolume.Add(ctx, usd, metric.WithAttributes(attribute.String("direction", direction)))
}

func (m *Metrics) RecordLiquidation(ctx context.Context, asset common.Address, debtCovered *uint256.Int) {
	m.Liquidations.Add(ctx, 1, metric.WithAttributes(attribute.String("asset", asset.Hex())))
}

func (m *Metrics) SetUnhealthyPositions(n int) {
	m.unhealthy.Store(int64(n))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	m.ActiveConnections.Add(ctx, -1)
}
