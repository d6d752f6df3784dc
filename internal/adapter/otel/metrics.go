package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "missioncontrol"

// Metrics holds the Mission Control instruments. A nil *Metrics records
// nothing, so callers never need to check.
type Metrics struct {
	WatchdogScans    metric.Int64Counter
	WatchdogRetries  metric.Int64Counter
	Mirrors          metric.Int64Counter
	Sends            metric.Int64Counter
	ScanDuration     metric.Float64Histogram
	SnapshotDuration metric.Float64Histogram
}

// NewMetrics creates all instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.Meter(meterName))
}

// NewMetricsFrom creates all instruments on the given meter.
func NewMetricsFrom(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.WatchdogScans, err = meter.Int64Counter("missioncontrol.watchdog.scans",
		metric.WithDescription("Number of watchdog scans, by outcome"))
	if err != nil {
		return nil, err
	}

	m.WatchdogRetries, err = meter.Int64Counter("missioncontrol.watchdog.retries",
		metric.WithDescription("Number of stalled-run retry decisions, by outcome"))
	if err != nil {
		return nil, err
	}

	m.Mirrors, err = meter.Int64Counter("missioncontrol.mirror.replies",
		metric.WithDescription("Number of subagent reply mirror decisions, by outcome"))
	if err != nil {
		return nil, err
	}

	m.Sends, err = meter.Int64Counter("missioncontrol.sends",
		metric.WithDescription("Number of messages sent to agent sessions, by outcome"))
	if err != nil {
		return nil, err
	}

	m.ScanDuration, err = meter.Float64Histogram("missioncontrol.watchdog.scan_duration_seconds",
		metric.WithDescription("Watchdog scan duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SnapshotDuration, err = meter.Float64Histogram("missioncontrol.snapshot.duration_seconds",
		metric.WithDescription("Snapshot build duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordScan counts one watchdog scan.
func (m *Metrics) RecordScan(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.WatchdogScans.Add(ctx, 1, attrs)
	m.ScanDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRetry counts one retry decision (requeued, requeue-failed, skipped, dry-run).
func (m *Metrics) RecordRetry(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.WatchdogRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMirror counts one mirror decision.
func (m *Metrics) RecordMirror(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Mirrors.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSend counts one message send.
func (m *Metrics) RecordSend(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Sends.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSnapshot records how long a snapshot took to build.
func (m *Metrics) RecordSnapshot(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotDuration.Record(ctx, d.Seconds())
}
