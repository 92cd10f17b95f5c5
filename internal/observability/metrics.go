package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics holds replication and sequencing metrics
type SyncMetrics struct {
	roundsCompleted   metric.Int64Counter
	roundsFailed      metric.Int64Counter
	recordsPushed     metric.Int64Counter
	recordsPulled     metric.Int64Counter
	conflictsDetected metric.Int64Counter
	conflictsResolved metric.Int64Counter
	ordersRenumbered  metric.Int64Counter
}

// NewSyncMetrics creates the sync metric instruments
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	roundsCompleted, err := meter.Int64Counter(
		"sync.rounds_completed",
		metric.WithDescription("Sync rounds that committed their watermark"),
		metric.WithUnit("{rounds}"),
	)
	if err != nil {
		return nil, err
	}

	roundsFailed, err := meter.Int64Counter(
		"sync.rounds_failed",
		metric.WithDescription("Sync rounds aborted by transport or storage failure"),
		metric.WithUnit("{rounds}"),
	)
	if err != nil {
		return nil, err
	}

	recordsPushed, err := meter.Int64Counter(
		"sync.records_pushed",
		metric.WithDescription("Local changes accepted by the remote authority"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	recordsPulled, err := meter.Int64Counter(
		"sync.records_pulled",
		metric.WithDescription("Remote changes merged into the local replica"),
		metric.WithUnit("{records}"),
	)
	if err != nil {
		return nil, err
	}

	conflictsDetected, err := meter.Int64Counter(
		"sync.conflicts_detected",
		metric.WithDescription("Divergent versions recorded in the conflict log"),
		metric.WithUnit("{conflicts}"),
	)
	if err != nil {
		return nil, err
	}

	conflictsResolved, err := meter.Int64Counter(
		"sync.conflicts_resolved",
		metric.WithDescription("Conflicts resolved automatically or by an operator"),
		metric.WithUnit("{conflicts}"),
	)
	if err != nil {
		return nil, err
	}

	ordersRenumbered, err := meter.Int64Counter(
		"sequencer.orders_renumbered",
		metric.WithDescription("Order numbers repaired by the day sequencer"),
		metric.WithUnit("{orders}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		roundsCompleted:   roundsCompleted,
		roundsFailed:      roundsFailed,
		recordsPushed:     recordsPushed,
		recordsPulled:     recordsPulled,
		conflictsDetected: conflictsDetected,
		conflictsResolved: conflictsResolved,
		ordersRenumbered:  ordersRenumbered,
	}, nil
}

// RoundCompleted records a committed round for a table
func (m *SyncMetrics) RoundCompleted(ctx context.Context, table string, pushed, pulled int) {
	attrs := metric.WithAttributes(attribute.String("table_name", table))
	m.roundsCompleted.Add(ctx, 1, attrs)
	m.recordsPushed.Add(ctx, int64(pushed), attrs)
	m.recordsPulled.Add(ctx, int64(pulled), attrs)
}

// RoundFailed records an aborted round for a table
func (m *SyncMetrics) RoundFailed(ctx context.Context, table string) {
	m.roundsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("table_name", table)))
}

// ConflictDetected records a new conflict log entry
func (m *SyncMetrics) ConflictDetected(ctx context.Context, table string) {
	m.conflictsDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("table_name", table)))
}

// ConflictResolved records a resolved conflict
func (m *SyncMetrics) ConflictResolved(ctx context.Context, table, strategy string) {
	m.conflictsResolved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table_name", table),
		attribute.String("strategy", strategy),
	))
}

// OrdersRenumbered records a non-empty repair batch
func (m *SyncMetrics) OrdersRenumbered(ctx context.Context, day string, count int) {
	m.ordersRenumbered.Add(ctx, int64(count), metric.WithAttributes(attribute.String("day", day)))
}
