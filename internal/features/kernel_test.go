package features

import (
	"math"
	"testing"

	"hft-engine/pkg/types"
)

func snapshotWithBook(bid, ask types.Level) types.MarketSnapshot {
	return types.MarketSnapshot{
		Symbol: "BTC-PERP",
		OrderBook: types.OrderBook{
			Symbol: "BTC-PERP",
			Bids:   []types.Level{bid},
			Asks:   []types.Level{ask},
		},
	}
}

func TestComputeOneEmptyBookIneligible(t *testing.T) {
	t.Parallel()
	snap := types.MarketSnapshot{Symbol: "BTC-PERP"}
	fv := computeOne(snap)
	if fv.Eligible {
		t.Fatalf("Eligible = true for an empty book")
	}
}

func TestComputeOneStaleBookIneligible(t *testing.T) {
	t.Parallel()
	snap := snapshotWithBook(types.Level{Price: 100, Quantity: 1}, types.Level{Price: 101, Quantity: 1})
	snap.OrderBook.Stale = true

	fv := computeOne(snap)
	if fv.Eligible {
		t.Fatalf("Eligible = true for a stale book")
	}
}

func TestComputeOneMidAndSpread(t *testing.T) {
	t.Parallel()
	snap := snapshotWithBook(types.Level{Price: 49990, Quantity: 10}, types.Level{Price: 50010, Quantity: 10})

	fv := computeOne(snap)
	if !fv.Eligible {
		t.Fatalf("Eligible = false for a valid two-sided book")
	}
	if fv.MidPrice != 50000 {
		t.Fatalf("MidPrice = %v, want 50000", fv.MidPrice)
	}
	if math.Abs(fv.SpreadBps-4) > 1e-9 {
		t.Fatalf("SpreadBps = %v, want 4", fv.SpreadBps)
	}
	if fv.OBI1s != 0 {
		t.Fatalf("OBI1s = %v, want 0 (symmetric depth)", fv.OBI1s)
	}
}

func TestOrderFlowImbalanceSigned(t *testing.T) {
	t.Parallel()
	trades := []types.Trade{
		{Side: types.Buy, Quantity: 5},
		{Side: types.Sell, Quantity: 2},
	}
	if got := orderFlowImbalance(trades); got != 3 {
		t.Fatalf("orderFlowImbalance() = %v, want 3", got)
	}
}

func TestKernelVectorOnlyNeverErrors(t *testing.T) {
	t.Parallel()
	k := NewKernel(VectorOnly)
	snaps := []types.MarketSnapshot{snapshotWithBook(types.Level{Price: 1, Quantity: 1}, types.Level{Price: 2, Quantity: 1})}
	out, err := k.ComputeBatch(snaps)
	if err != nil {
		t.Fatalf("ComputeBatch() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

func TestKernelPreservesOrder(t *testing.T) {
	t.Parallel()
	k := NewKernel(ScalarOnly)
	snaps := []types.MarketSnapshot{
		{Symbol: "A"}, {Symbol: "B"}, {Symbol: "A"},
	}
	out, err := k.ComputeBatch(snaps)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Symbol != "A" || out[1].Symbol != "B" || out[2].Symbol != "A" {
		t.Fatalf("order not preserved: %+v", out)
	}
}
