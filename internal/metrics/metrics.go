// Package metrics holds the hub's OpenTelemetry instruments.
package metrics

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "github.com/vovakirdan/storyhub"

// Join results recorded on storyhub_joins_total.
const (
	JoinAccepted    = "accepted"
	JoinDenied      = "denied"
	JoinNotFound    = "not_found"
	JoinUnavailable = "unavailable"
)

// Metrics records hub activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	connections metric.Int64Counter
	active      metric.Int64UpDownCounter
	joins       metric.Int64Counter
	broadcasts  metric.Int64Counter
	dropped     metric.Int64Counter
	violations  metric.Int64Counter
}

// New creates a meter provider backed by a manual reader so the current
// values can be served by Snapshot.
func New() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newWithMeter(provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	m.provider = provider
	m.reader = reader
	return m, nil
}

func newWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.connections, err = meter.Int64Counter("storyhub_connections_total",
		metric.WithDescription("Authenticated connections accepted")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.active, err = meter.Int64UpDownCounter("storyhub_active_connections",
		metric.WithDescription("Connections currently registered on this instance")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.joins, err = meter.Int64Counter("storyhub_joins_total",
		metric.WithDescription("Room join attempts by result")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.broadcasts, err = meter.Int64Counter("storyhub_broadcasts_total",
		metric.WithDescription("Events fanned out by event name")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.dropped, err = meter.Int64Counter("storyhub_deliveries_dropped_total",
		metric.WithDescription("Events skipped because a recipient queue was full")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if m.violations, err = meter.Int64Counter("storyhub_violations_total",
		metric.WithDescription("Protocol violations detected")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
}

func (m *Metrics) Join(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.joins.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) Broadcast(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.broadcasts.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *Metrics) Dropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1)
}

func (m *Metrics) Violation(ctx context.Context) {
	if m == nil {
		return
	}
	m.violations.Add(ctx, 1)
}

// Point is one data point of an integer sum.
type Point struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      int64             `json:"value"`
}

// Snapshot collects the current value of every instrument.
func (m *Metrics) Snapshot(ctx context.Context) ([]Point, error) {
	if m == nil || m.reader == nil {
		return nil, nil
	}
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var points []Point
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				p := Point{Name: md.Name, Value: dp.Value}
				for _, kv := range dp.Attributes.ToSlice() {
					if p.Attributes == nil {
						p.Attributes = make(map[string]string)
					}
					p.Attributes[string(kv.Key)] = kv.Value.Emit()
				}
				points = append(points, p)
			}
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Name < points[j].Name })
	return points, nil
}

// Shutdown stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
