package metrics

import (
	"context"
	"testing"
)

func find(points []Point, name string, attrs map[string]string) (int64, bool) {
	for _, p := range points {
		if p.Name != name {
			continue
		}
		match := true
		for k, v := range attrs {
			if p.Attributes[k] != v {
				match = false
			}
		}
		if match {
			return p.Value, true
		}
	}
	return 0, false
}

func TestSnapshotReflectsRecordedValues(t *testing.T) {
	ctx := context.Background()
	m, err := New()
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	defer m.Shutdown(ctx)

	m.ConnectionOpened(ctx)
	m.ConnectionOpened(ctx)
	m.ConnectionClosed(ctx)
	m.Join(ctx, JoinAccepted)
	m.Join(ctx, JoinDenied)
	m.Join(ctx, JoinDenied)
	m.Broadcast(ctx, "new_comment")
	m.Dropped(ctx)
	m.Violation(ctx)

	points, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	tests := []struct {
		name  string
		attrs map[string]string
		want  int64
	}{
		{"storyhub_connections_total", nil, 2},
		{"storyhub_active_connections", nil, 1},
		{"storyhub_joins_total", map[string]string{"result": JoinAccepted}, 1},
		{"storyhub_joins_total", map[string]string{"result": JoinDenied}, 2},
		{"storyhub_broadcasts_total", map[string]string{"event": "new_comment"}, 1},
		{"storyhub_deliveries_dropped_total", nil, 1},
		{"storyhub_violations_total", nil, 1},
	}
	for _, tt := range tests {
		got, ok := find(points, tt.name, tt.attrs)
		if !ok {
			t.Fatalf("metric %s %v not found in %+v", tt.name, tt.attrs, points)
		}
		if got != tt.want {
			t.Fatalf("metric %s %v = %d, want %d", tt.name, tt.attrs, got, tt.want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.ConnectionOpened(ctx)
	m.Join(ctx, JoinAccepted)
	m.Violation(ctx)
	if points, err := m.Snapshot(ctx); err != nil || points != nil {
		t.Fatalf("expected empty snapshot, got %v %v", points, err)
	}
}
