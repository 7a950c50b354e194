// Package features implements the feature batcher (C3): size/timeout
// triggered aggregation of market snapshots into feature vectors.
package features

import (
	"context"
	"log/slog"
	"time"

	"hft-engine/internal/metrics"
	"hft-engine/pkg/types"
)

// State is the batcher's lifecycle state, per spec §4.2's state machine:
// Idle -> Filling (on first push) -> Flushing (on size or deadline) ->
// Idle. Flushing is non-cancellable: a shutdown signal observed mid-flush
// completes the flush before the batcher exits.
type State int

const (
	Idle State = iota
	Filling
	Flushing
)

// Batch is one flushed group of computed feature vectors, in arrival
// order.
type Batch struct {
	Features []types.FeatureVec
}

// AlertFunc is how the batcher reports a non-fatal kernel failure. The
// engine wires this to the telemetry fan-out (C9).
type AlertFunc func(level types.AlertLevel, message string)

// Batcher aggregates snapshots pushed onto In and flushes computed
// batches onto Out, triggered by size or a timeout, whichever comes
// first.
type Batcher struct {
	in   chan types.MarketSnapshot
	out  chan Batch

	batchSize    int
	batchTimeout time.Duration

	kernel *Kernel
	alert  AlertFunc
	logger *slog.Logger

	// metrics is optional: a nil metrics skips Prometheus recording, the
	// same convention internal/engine.Engine uses.
	metrics       *metrics.Metrics
	lastFallbacks uint64

	state State
}

// New creates a batcher. in is sized by the caller (spec recommends
// ≥ batchSize*8 so backpressure degrades gracefully instead of blocking
// the producer). met may be nil.
func New(in chan types.MarketSnapshot, batchSize int, batchTimeout time.Duration, kernel *Kernel, alert AlertFunc, met *metrics.Metrics, logger *slog.Logger) *Batcher {
	return &Batcher{
		in:           in,
		out:          make(chan Batch, 4),
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		kernel:       kernel,
		alert:        alert,
		metrics:      met,
		logger:       logger.With("component", "features"),
		state:        Idle,
	}
}

// Out returns the channel of flushed, computed batches.
func (b *Batcher) Out() <-chan Batch { return b.out }

// Run drives the batcher's edge-triggered loop until ctx is cancelled.
// Each incoming snapshot is buffered, then the size predicate is
// re-evaluated; a ticker raises the deadline event when the channel has
// gone idle. On shutdown, any buffer in progress is flushed before Run
// returns.
func (b *Batcher) Run(ctx context.Context) {
	buf := make([]types.MarketSnapshot, 0, b.batchSize)
	timer := time.NewTimer(b.batchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(buf) == 0 {
			return
		}
		b.state = Flushing
		b.flush(buf)
		buf = buf[:0]
		b.state = Idle
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case snap, ok := <-b.in:
			if !ok {
				flush()
				return
			}
			if len(buf) == 0 {
				b.state = Filling
				if !timer.Stop() {
					drainTimer(timer)
				}
				timer.Reset(b.batchTimeout)
			}
			buf = append(buf, snap)
			if len(buf) >= b.batchSize {
				flush()
				if !timer.Stop() {
					drainTimer(timer)
				}
				timer.Reset(b.batchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(b.batchTimeout)
		}
	}
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// flush runs the feature kernel over the buffered snapshots and forwards
// the result. A kernel error drops the batch entirely — stale data is
// worse than missing data — and raises a Warning alert; there is no
// per-snapshot retry.
func (b *Batcher) flush(buf []types.MarketSnapshot) {
	batch := make([]types.MarketSnapshot, len(buf))
	copy(batch, buf)

	start := time.Now()
	fv, err := b.kernel.ComputeBatch(batch)
	elapsed := time.Since(start)

	if b.metrics != nil {
		b.metrics.FeatureLatency.WithLabelValues(modeLabel(b.kernel.mode)).Observe(elapsed.Seconds())
		if fallbacks := b.kernel.Fallbacks(); fallbacks > b.lastFallbacks {
			b.metrics.GPUKernelFailures.Add(float64(fallbacks - b.lastFallbacks))
			b.lastFallbacks = fallbacks
		}
	}

	if err != nil {
		b.logger.Error("feature kernel failed, dropping batch", "error", err, "size", len(batch))
		if b.metrics != nil {
			b.metrics.GPUKernelFailures.Inc()
		}
		if b.alert != nil {
			b.alert(types.AlertWarning, "engine_halt_gpu_failure: feature kernel error, batch dropped")
		}
		return
	}

	if b.metrics != nil {
		b.metrics.BatchesFlushed.Inc()
	}

	select {
	case b.out <- Batch{Features: fv}:
	default:
		b.logger.Warn("feature batch output channel full, dropping batch")
	}
}

func modeLabel(m ComputeMode) string {
	switch m {
	case ScalarOnly:
		return "scalar_only"
	case VectorOnly:
		return "vector_only"
	default:
		return "vector_first"
	}
}
