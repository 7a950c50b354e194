// Package engine is the central orchestrator of the trading system (C8).
//
// It wires together all subsystems into one pipeline:
//
//  1. A venue adapter streams order book deltas and trades per symbol.
//  2. The book store (C1) maintains per-symbol order books from those deltas.
//  3. The feature batcher (C3) aggregates periodic snapshots into batches of
//     feature vectors.
//  4. The inference pool (C4) turns each eligible feature vector into an
//     ensemble prediction.
//  5. The trade gate and router (C5/C6) decide whether and how to trade,
//     gated by the risk manager (C7).
//  6. Approved decisions become orders submitted through the venue adapter.
//  7. Risk, performance, and alert state fan out to telemetry subscribers (C9).
//
// Lifecycle: New() -> Run(ctx), which runs until ctx is cancelled.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hft-engine/internal/features"
	"hft-engine/internal/gate"
	"hft-engine/internal/inference"
	"hft-engine/internal/metrics"
	"hft-engine/internal/risk"
	"hft-engine/internal/router"
	"hft-engine/internal/telemetry"
	"hft-engine/pkg/types"
)

// DecisionMode selects which decision-making path the engine drives orders
// through: the ML ensemble (MLTraditional), the RL policy (RLAgent), or
// both, trading only when their directions agree (Hybrid).
type DecisionMode int

const (
	MLTraditional DecisionMode = iota
	RLAgent
	Hybrid
)

func (m DecisionMode) String() string {
	switch m {
	case RLAgent:
		return "rl_agent"
	case Hybrid:
		return "hybrid"
	default:
		return "ml_traditional"
	}
}

// RunMode gates whether the engine actually submits orders.
type RunMode int

const (
	// Live submits real orders through the adapter.
	Live RunMode = iota
	// Paper runs the full pipeline but never calls the adapter's order
	// router — decisions are logged and telemetered only.
	Paper
	// Paused, like Paper, still computes every decision but submits no
	// orders; processOne treats the two the same way.
	Paused
)

// slowCycleThreshold is the per-symbol decision-loop latency above which the
// engine raises a Warning alert, per spec §4.8.
const slowCycleThreshold = 5 * time.Millisecond

// AlertSink is how the engine reports operational alerts; wired to the
// telemetry fan-out (C9) in production, a no-op or recorder in tests.
type AlertSink func(level types.AlertLevel, source, message string)

// Engine owns the full pipeline and its goroutines.
type Engine struct {
	mode     DecisionMode
	runMode  RunMode
	runModeMu sync.RWMutex

	universe types.SymbolUniverse
	category inference.Category
	costs    types.CostModel

	adapter types.ExchangeAdapter
	kernel  *features.Kernel
	pool    *inference.Pool
	rte     *router.Router
	riskMgr *risk.Manager

	alert  AlertSink
	logger *slog.Logger

	snapshots chan types.MarketSnapshot

	batchSize    int
	batchTimeout time.Duration

	metrics         *metrics.Metrics
	telemetry       *telemetry.Publisher
	metricsInterval time.Duration

	modelLatency *latencyTracker
	routeLatency *latencyTracker

	droppedFrames uint64
	modelTimeouts uint64
	orderRejects  uint64
}

// Config bundles the dependencies New needs. Everything here is already
// constructed by cmd/bot/main.go — Engine only wires calls between them.
type Config struct {
	Mode     DecisionMode
	Universe types.SymbolUniverse
	Category inference.Category
	Costs    types.CostModel

	Adapter types.ExchangeAdapter
	Kernel  *features.Kernel
	Pool    *inference.Pool
	Gate    *gate.Gate
	Risk    *risk.Manager

	BatchSize    int
	BatchTimeout time.Duration
	SnapshotBuf  int

	// Metrics and Telemetry are both optional: a nil Metrics skips
	// Prometheus recording, a nil Telemetry skips the periodic
	// PerformanceMetrics/RiskSnapshot broadcast. MetricsInterval defaults
	// to 1s when Telemetry is set and this is zero.
	Metrics         *metrics.Metrics
	Telemetry       *telemetry.Publisher
	MetricsInterval time.Duration

	Alert  AlertSink
	Logger *slog.Logger
}

func New(cfg Config) *Engine {
	rte := router.New(cfg.Gate, cfg.Risk)
	bufSize := cfg.SnapshotBuf
	if bufSize <= 0 {
		bufSize = cfg.BatchSize * 8
	}
	interval := cfg.MetricsInterval
	if interval <= 0 {
		interval = time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 250 * time.Millisecond
	}

	return &Engine{
		mode:            cfg.Mode,
		runMode:         Live,
		universe:        cfg.Universe,
		category:        cfg.Category,
		costs:           cfg.Costs,
		adapter:         cfg.Adapter,
		kernel:          cfg.Kernel,
		pool:            cfg.Pool,
		rte:             rte,
		riskMgr:         cfg.Risk,
		alert:           cfg.Alert,
		logger:          cfg.Logger.With("component", "engine"),
		snapshots:       make(chan types.MarketSnapshot, bufSize),
		batchSize:       batchSize,
		batchTimeout:    batchTimeout,
		metrics:         cfg.Metrics,
		telemetry:       cfg.Telemetry,
		metricsInterval: interval,
		modelLatency:    newLatencyTracker(),
		routeLatency:    newLatencyTracker(),
	}
}

// Ready reports whether the decision mode's required models are loaded for
// this engine's category. The engine refuses to trade (falls back to
// logging-only Paper behavior) until this is true — a startup verification
// step, not a runtime retry. Hybrid requires both arms loaded, per spec
// §4.7: "Hybrid requires both and emits a trade only when RL and ML agree."
func (e *Engine) Ready() bool {
	switch e.mode {
	case RLAgent:
		return e.pool.HasRL()
	case Hybrid:
		return e.pool.HasModels(e.category) && e.pool.HasRL()
	default:
		return e.pool.HasModels(e.category)
	}
}

// SetRunMode switches between Live, Paper, and Paused without tearing down
// the pipeline.
func (e *Engine) SetRunMode(m RunMode) {
	e.runModeMu.Lock()
	defer e.runModeMu.Unlock()
	e.runMode = m
	e.logger.Info("run mode changed", "mode", m)
}

func (e *Engine) getRunMode() RunMode {
	e.runModeMu.RLock()
	defer e.runModeMu.RUnlock()
	return e.runMode
}

// Snapshots returns the send side of the batcher's input channel, which
// Run's ingest goroutine fills from the adapter's SnapshotReceiver.
func (e *Engine) Snapshots() chan<- types.MarketSnapshot { return e.snapshots }

// Run drives the full pipeline until ctx is cancelled. It supervises
// snapshot ingest, the batcher, the decision loop and (when Telemetry is
// set) the publish loop as sibling goroutines under one errgroup: one of
// them returning an error cancels the others, and Run returns once all of
// them have exited.
func (e *Engine) Run(ctx context.Context) error {
	if !e.Ready() {
		e.logger.Warn("required models not loaded for category; running in paper-only fallback", "category", e.category)
		e.SetRunMode(Paper)
	}

	if err := e.adapter.Connect(ctx); err != nil {
		return err
	}
	if err := e.adapter.SubscribeOrderbook(ctx, e.universe.Symbols); err != nil {
		return err
	}
	if err := e.adapter.SubscribeTrades(ctx, e.universe.Symbols); err != nil {
		return err
	}

	batcher := features.New(e.snapshots, e.batchSize, e.batchTimeout, e.kernel, e.wrapAlert(), e.metrics, e.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.ingestSnapshots(ctx)
		return nil
	})
	g.Go(func() error {
		batcher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return e.decisionLoop(ctx, batcher)
	})
	if e.telemetry != nil {
		g.Go(func() error {
			e.publishLoop(ctx)
			return nil
		})
	}

	return g.Wait()
}

// publishLoop periodically fans PerformanceMetrics and RiskSnapshot out to
// telemetry subscribers (C9) until ctx is cancelled. This is sideband to
// the hot path — nothing here runs inline with a decision.
func (e *Engine) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(e.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			e.telemetry.PublishMetrics(e.buildPerformanceMetrics())
			e.telemetry.PublishRisk(e.riskMgr.Snapshot(now.UnixNano()))
			if e.metrics != nil {
				state := e.riskMgr.GetState()
				if state.KillSwitchActive {
					e.metrics.KillSwitchActive.Set(1)
				} else {
					e.metrics.KillSwitchActive.Set(0)
				}
				e.metrics.DailyPnl.Set(state.DailyPnl)
			}
		}
	}
}

func (e *Engine) buildPerformanceMetrics() types.PerformanceMetrics {
	modelP50, modelP95, modelP99 := e.modelLatency.Percentiles()
	routeP50, routeP95, routeP99 := e.routeLatency.Percentiles()

	return types.PerformanceMetrics{
		ModelP50Us:    modelP50,
		ModelP95Us:    modelP95,
		ModelP99Us:    modelP99,
		RouteP50Us:    routeP50,
		RouteP95Us:    routeP95,
		RouteP99Us:    routeP99,
		DroppedFrames: atomic.LoadUint64(&e.droppedFrames),
		ModelTimeouts: atomic.LoadUint64(&e.modelTimeouts),
		OrderRejects:  atomic.LoadUint64(&e.orderRejects),
	}
}

// ingestSnapshots bridges the venue adapter's published snapshots onto the
// batcher's input channel, dropping (with a Warning alert) when the engine
// can't keep up rather than applying backpressure to the adapter's own
// reconnect/dispatch loop.
func (e *Engine) ingestSnapshots(ctx context.Context) {
	recv := e.adapter.SnapshotReceiver()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-recv:
			if !ok {
				return
			}
			if e.metrics != nil {
				elapsed := time.Since(time.Unix(0, snap.TimestampNs))
				e.metrics.IngestLatency.WithLabelValues(string(snap.Symbol)).Observe(elapsed.Seconds())
			}
			select {
			case e.snapshots <- snap:
			default:
				atomic.AddUint64(&e.droppedFrames, 1)
				if e.metrics != nil {
					e.metrics.DroppedFrames.Inc()
				}
				e.raiseAlert(types.AlertWarning, "snapshot buffer full, dropping snapshot", "symbol", snap.Symbol)
			}
		}
	}
}

func (e *Engine) wrapAlert() features.AlertFunc {
	if e.alert == nil {
		return nil
	}
	return func(level types.AlertLevel, message string) {
		e.alert(level, "features", message)
	}
}

// decisionLoop consumes computed feature batches, runs inference and
// routing per eligible symbol, and submits approved orders.
func (e *Engine) decisionLoop(ctx context.Context, batcher *features.Batcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batcher.Out():
			if !ok {
				return nil
			}
			for _, fv := range batch.Features {
				if !fv.Eligible {
					continue
				}
				e.processOne(ctx, fv)
			}
		}
	}
}

func (e *Engine) processOne(ctx context.Context, fv types.FeatureVec) {
	start := time.Now()
	defer func() {
		if elapsed := time.Since(start); elapsed > slowCycleThreshold {
			e.raiseAlert(types.AlertWarning, "decision loop exceeded slow-cycle threshold",
				"symbol", fv.Symbol, "elapsed_us", elapsed.Microseconds())
		}
	}()

	modelStart := time.Now()
	pred, ok := e.predictForMode(ctx, fv)
	modelElapsed := time.Since(modelStart)
	e.modelLatency.Record(modelElapsed)
	if e.metrics != nil {
		e.metrics.ModelLatency.WithLabelValues(e.mode.String(), categoryLabel(e.category)).Observe(modelElapsed.Seconds())
	}
	if !ok {
		return
	}

	routeStart := time.Now()
	decision := e.rte.Decide(pred, fv, e.costs)
	routeElapsed := time.Since(routeStart)
	e.routeLatency.Record(routeElapsed)
	if e.metrics != nil {
		e.metrics.RouteLatency.WithLabelValues(string(fv.Symbol)).Observe(routeElapsed.Seconds())
	}
	if !decision.ShouldTrade {
		return
	}

	if e.getRunMode() != Live {
		e.logger.Info("paper decision (not submitted)", "symbol", fv.Symbol, "style", decision.Style, "size_fraction", decision.SizeFraction)
		return
	}

	req := e.buildOrder(fv, decision)
	if err := e.riskMgr.CheckLimits(fv.Symbol, req.Quantity*fv.MidPrice); err != nil {
		if e.metrics != nil {
			e.metrics.RiskCheckRejections.Inc()
		}
		e.raiseAlert(types.AlertWarning, "risk check rejected order", "symbol", fv.Symbol, "error", err.Error())
		return
	}

	if _, err := e.adapter.SendOrder(ctx, req); err != nil {
		atomic.AddUint64(&e.orderRejects, 1)
		if e.metrics != nil {
			e.metrics.OrderRejects.Inc()
		}
		e.raiseAlert(types.AlertCritical, "order submission failed", "symbol", fv.Symbol, "error", err.Error())
		return
	}
	if e.metrics != nil {
		e.metrics.OrdersSubmitted.WithLabelValues(decision.Style.String()).Inc()
	}
}

func categoryLabel(c inference.Category) string {
	if c == inference.Equity {
		return "equity"
	}
	return "crypto"
}

// predictForMode runs inference along the path the engine's DecisionMode
// selects (spec §4.7): the ML ensemble alone, the RL policy alone, or
// both run concurrently with Hybrid only proceeding when they agree on
// trade direction (sign of edge_bps). Returns ok=false when no usable
// prediction resulted — a model-call failure, or a Hybrid disagreement —
// in which case the caller should skip this signal without alerting as a
// failure (disagreement is an expected, not exceptional, outcome).
func (e *Engine) predictForMode(ctx context.Context, fv types.FeatureVec) (types.Prediction, bool) {
	switch e.mode {
	case RLAgent:
		pred, err := e.pool.PredictRL(ctx, fv)
		if err != nil {
			e.countModelFailure(err)
			e.raiseAlert(types.AlertCritical, "RL policy prediction failed", "symbol", fv.Symbol, "error", err.Error())
			return types.Prediction{}, false
		}
		return pred, true

	case Hybrid:
		var mlPred, rlPred types.Prediction
		var mlErr, rlErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			mlPred, mlErr = e.pool.PredictEnsemble(ctx, e.category, fv)
		}()
		go func() {
			defer wg.Done()
			rlPred, rlErr = e.pool.PredictRL(ctx, fv)
		}()
		wg.Wait()

		if mlErr != nil || rlErr != nil {
			e.countModelFailure(mlErr)
			e.countModelFailure(rlErr)
			e.raiseAlert(types.AlertWarning, "hybrid arm prediction failed", "symbol", fv.Symbol,
				"ml_error", errString(mlErr), "rl_error", errString(rlErr))
			return types.Prediction{}, false
		}
		if sign(mlPred.EdgeBps) != sign(rlPred.EdgeBps) {
			e.logger.Info("hybrid arms disagree, skipping signal", "symbol", fv.Symbol,
				"ml_edge_bps", mlPred.EdgeBps, "rl_edge_bps", rlPred.EdgeBps)
			return types.Prediction{}, false
		}
		return mlPred, true

	default: // MLTraditional
		pred, err := e.pool.PredictEnsemble(ctx, e.category, fv)
		if err != nil {
			e.countModelFailure(err)
			e.raiseAlert(types.AlertCritical, "ensemble prediction failed", "symbol", fv.Symbol, "error", err.Error())
			return types.Prediction{}, false
		}
		return pred, true
	}
}

// countModelFailure records a Timeout-kind inference error against the
// model-timeout counters; other failure kinds (missing models, execution
// errors) aren't timeouts and don't count here.
func (e *Engine) countModelFailure(err error) {
	if err == nil {
		return
	}
	var terr *types.Error
	if errors.As(err, &terr) && terr.Kind == types.ErrTimeout {
		atomic.AddUint64(&e.modelTimeouts, 1)
		if e.metrics != nil {
			e.metrics.ModelTimeouts.Inc()
		}
	}
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// buildOrder turns a RouteDecision into an OrderRequest. Side is chosen by
// the sign of order-flow imbalance, not by the sign of the prediction's
// edge — the two usually agree, but OFI sign is the reference engine's
// authoritative execution-side signal (it reflects what is about to hit the
// book, not what the model thinks it's worth).
func (e *Engine) buildOrder(fv types.FeatureVec, decision types.RouteDecision) types.OrderRequest {
	side := types.Buy
	if fv.OFI1s < 0 {
		side = types.Sell
	}

	orderType := types.OrderLimit
	tif := types.TIFGTC
	if decision.Style == types.TakerNow {
		orderType = types.OrderMarket
		tif = types.TIFIOC
	}

	qty := decision.SizeFraction * referenceNotional / maxFloat(fv.MidPrice, epsilonPrice)

	return types.OrderRequest{
		Symbol:      fv.Symbol,
		Side:        side,
		OrderType:   orderType,
		Quantity:    qty,
		TimeInForce: tif,
	}
}

const (
	referenceNotional = 10_000.0 // per-decision sizing basis, position-capital fraction
	epsilonPrice      = 1e-9
)

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) raiseAlert(level types.AlertLevel, message string, kv ...any) {
	e.logger.Warn(message, kv...)
	if e.alert != nil {
		e.alert(level, "engine", message)
	}
}
