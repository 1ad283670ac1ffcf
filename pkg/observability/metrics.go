package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/passcrack/pkg/safeconv"
)

const (
	metricCandidatesTotal = "passcrack.candidates.total"
	metricCheckDuration   = "passcrack.check.duration.seconds"
	metricInflightChecks  = "passcrack.inflight.checks"
	metricCallerRunsTotal = "passcrack.caller_runs.total"
	metricAbandonedTotal  = "passcrack.abandoned.total"

	attrResult = "result"
)

// Check results recorded on [metricCandidatesTotal].
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// checkBucketBoundaries covers sub-millisecond unprotected keys up to
// multi-second memory-hard S2K derivations.
var checkBucketBoundaries = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// CrackMetrics holds the OTel instruments of a cracking run.
// All methods are safe to call on a nil receiver (no-op).
type CrackMetrics struct {
	candidatesTotal metric.Int64Counter
	checkDuration   metric.Float64Histogram
	inflightChecks  metric.Int64UpDownCounter
	callerRuns      metric.Int64Counter
	abandoned       metric.Int64Counter
}

// RunStats holds executor statistics for a finished run, decoupled from executor types.
type RunStats struct {
	CallerRuns uint64
	Abandoned  uint64
}

// NewCrackMetrics creates cracking metric instruments from the given meter.
func NewCrackMetrics(mt metric.Meter) (*CrackMetrics, error) {
	candidates, err := mt.Int64Counter(metricCandidatesTotal,
		metric.WithDescription("Candidates checked, by result"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCandidatesTotal, err)
	}

	duration, err := mt.Float64Histogram(metricCheckDuration,
		metric.WithDescription("Duration of a single passphrase check in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(checkBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCheckDuration, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightChecks,
		metric.WithDescription("Number of checks currently running"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightChecks, err)
	}

	callerRuns, err := mt.Int64Counter(metricCallerRunsTotal,
		metric.WithDescription("Checks run on the producer because the queue was full"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCallerRunsTotal, err)
	}

	abandoned, err := mt.Int64Counter(metricAbandonedTotal,
		metric.WithDescription("Queued checks dropped at shutdown"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricAbandonedTotal, err)
	}

	return &CrackMetrics{
		candidatesTotal: candidates,
		checkDuration:   duration,
		inflightChecks:  inflight,
		callerRuns:      callerRuns,
		abandoned:       abandoned,
	}, nil
}

// RecordCheck records one finished check with its result and duration.
func (cm *CrackMetrics) RecordCheck(ctx context.Context, result string, duration time.Duration) {
	if cm == nil {
		return
	}

	cm.candidatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
	cm.checkDuration.Record(ctx, duration.Seconds())
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (cm *CrackMetrics) TrackInflight(ctx context.Context) func() {
	if cm == nil {
		return func() {}
	}

	cm.inflightChecks.Add(ctx, 1)

	return func() {
		cm.inflightChecks.Add(ctx, -1)
	}
}

// RecordRun records executor statistics for a completed run.
func (cm *CrackMetrics) RecordRun(ctx context.Context, stats RunStats) {
	if cm == nil {
		return
	}

	cm.callerRuns.Add(ctx, safeconv.Uint64ToInt64(stats.CallerRuns))
	cm.abandoned.Add(ctx, safeconv.Uint64ToInt64(stats.Abandoned))
}
