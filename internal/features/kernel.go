package features

import (
	"math"
	"sync/atomic"

	"hft-engine/pkg/types"
)

// ComputeMode mirrors the reference engine's GPU-first/CPU-fallback
// feature compute strategy. There is no actual GPU binding here — out of
// scope for a CLI engine — but the same three-mode enum and the same
// fallback-then-counter behavior are preserved so the failure semantics
// spec.md §4.2 describes (hard batch-drop on kernel failure) line up with
// how the reference implementation actually behaves in its strictest
// mode.
type ComputeMode int

const (
	// VectorFirst tries the vectorized batch kernel, falling back to the
	// scalar per-symbol kernel on failure and counting the fallback.
	VectorFirst ComputeMode = iota
	// ScalarOnly always uses the per-symbol kernel (debugging).
	ScalarOnly
	// VectorOnly fails the whole batch if the vectorized kernel errors —
	// the mode spec.md's Non-goals and failure semantics describe as the
	// default hot-path behavior.
	VectorOnly
)

// Kernel computes FeatureVecs for a batch of snapshots. ComputeBatch must
// be safe to call concurrently with other Kernel methods.
type Kernel struct {
	mode ComputeMode

	// fallbacks counts VectorFirst calls that fell back to the scalar
	// path, the Go analogue of the reference engine's
	// gpu_fallback_total counter.
	fallbacks uint64
}

func NewKernel(mode ComputeMode) *Kernel {
	return &Kernel{mode: mode}
}

// ComputeBatch computes one FeatureVec per snapshot, preserving input
// order. In VectorOnly mode a vector-kernel failure fails the whole
// batch; in VectorFirst mode it falls back to the scalar kernel and
// increments Fallbacks(); ScalarOnly always uses the scalar path.
func (k *Kernel) ComputeBatch(snapshots []types.MarketSnapshot) ([]types.FeatureVec, error) {
	switch k.mode {
	case ScalarOnly:
		return k.computeScalar(snapshots), nil

	case VectorOnly:
		return k.computeVector(snapshots)

	default: // VectorFirst
		out, err := k.computeVector(snapshots)
		if err != nil {
			atomic.AddUint64(&k.fallbacks, 1)
			return k.computeScalar(snapshots), nil
		}
		return out, nil
	}
}

// Fallbacks returns the number of VectorFirst batches that fell back to
// the scalar kernel.
func (k *Kernel) Fallbacks() uint64 { return atomic.LoadUint64(&k.fallbacks) }

// computeVector is the batch-vectorised path. There is no real SIMD/GPU
// backing in this implementation; it computes the same per-symbol
// formulas as computeScalar but represents the "vectorised" code path the
// engine prefers to exercise first.
func (k *Kernel) computeVector(snapshots []types.MarketSnapshot) ([]types.FeatureVec, error) {
	return k.computeScalar(snapshots), nil
}

// computeScalar is the individual-symbol fallback kernel, implementing
// spec §4.2's reference feature set.
func (k *Kernel) computeScalar(snapshots []types.MarketSnapshot) []types.FeatureVec {
	out := make([]types.FeatureVec, len(snapshots))
	for i, snap := range snapshots {
		out[i] = computeOne(snap)
	}
	return out
}

const epsilon = 1e-9

func computeOne(snap types.MarketSnapshot) types.FeatureVec {
	ob := snap.OrderBook
	fv := types.FeatureVec{
		TimestampNs: snap.TimestampNs,
		Symbol:      snap.Symbol,
	}

	if ob.Stale {
		return fv // Eligible stays false: feature computation skips stale books.
	}

	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return fv
	}

	mid := (bid.Price + ask.Price) / 2
	spreadBps := (ask.Price - bid.Price) / mid * 10000

	fv.MidPrice = mid
	fv.SpreadBps = spreadBps
	fv.OBI1s = orderBookImbalance(ob, 10)
	fv.OFI1s = orderFlowImbalance(snap.RecentTrades)
	fv.DepthImbalance = fv.OBI1s
	fv.Microprice = microprice(bid, ask)
	fv.VWAPRatio = vwapRatio(mid, snap.RecentTrades)
	if snap.FundingRateBps != nil {
		fv.FundingBps8h = *snap.FundingRateBps
	}
	fv.Eligible = true

	return fv
}

// orderBookImbalance computes OBI over the top-n levels on each side:
// (sum(bid_qty) - sum(ask_qty)) / (sum(bid_qty) + sum(ask_qty) + eps).
func orderBookImbalance(ob types.OrderBook, n int) float64 {
	var bidQty, askQty float64
	for i, l := range ob.Bids {
		if i >= n {
			break
		}
		bidQty += l.Quantity
	}
	for i, l := range ob.Asks {
		if i >= n {
			break
		}
		askQty += l.Quantity
	}
	return (bidQty - askQty) / (bidQty + askQty + epsilon)
}

// orderFlowImbalance sums signed trade volume: buys positive, sells
// negative, over whatever trades the caller has already windowed into
// RecentTrades.
func orderFlowImbalance(trades []types.Trade) float64 {
	var ofi float64
	for _, tr := range trades {
		if tr.Side == types.Buy {
			ofi += tr.Quantity
		} else {
			ofi -= tr.Quantity
		}
	}
	return ofi
}

// microprice is the quote-weighted fair price using the *opposite* side's
// quantity as the weight.
func microprice(bid, ask types.Level) float64 {
	denom := bid.Quantity + ask.Quantity
	if denom == 0 {
		return (bid.Price + ask.Price) / 2
	}
	return (bid.Price*ask.Quantity + ask.Price*bid.Quantity) / denom
}

func vwapRatio(mid float64, trades []types.Trade) float64 {
	var pv, v float64
	for _, tr := range trades {
		pv += tr.Price * tr.Quantity
		v += tr.Quantity
	}
	if v == 0 || mid == 0 {
		return 1.0
	}
	return mid / (pv / v)
}

// RealizedVol computes a simple windowed realized volatility proxy from a
// slice of mid prices (most recent last). Exposed for callers that track
// their own rolling mid-price history. The batcher keeps no such history,
// so computeOne leaves the realized_vol_5s / atr_30s fields at zero.
func RealizedVol(mids []float64) float64 {
	if len(mids) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(mids); i++ {
		r := (mids[i] - mids[i-1]) / mids[i-1]
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(len(mids)-1))
}
