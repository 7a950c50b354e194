package book

import (
	"testing"

	"hft-engine/pkg/types"
)

func TestSnapshotMissingSymbol(t *testing.T) {
	t.Parallel()
	s := NewStore()
	if _, ok := s.Snapshot("BTC-PERP", 0, DefaultDepth); ok {
		t.Fatalf("Snapshot() ok = true for never-seen symbol")
	}
}

// TestBookDeltaOrdering is spec.md Scenario S5.
func TestBookDeltaOrdering(t *testing.T) {
	t.Parallel()
	s := NewStore()
	sym := types.Symbol("BTC-PERP")

	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Buy, Price: 100, Quantity: 1.0})
	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Buy, Price: 101, Quantity: 2.0})
	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaDelete, Side: types.Buy, Price: 100})

	ob, ok := s.Snapshot(sym, 0, 5)
	if !ok {
		t.Fatalf("Snapshot() ok = false")
	}
	if len(ob.Bids) != 1 || ob.Bids[0].Price != 101 || ob.Bids[0].Quantity != 2.0 {
		t.Fatalf("Bids = %+v, want [(101, 2.0)]", ob.Bids)
	}
	if ob.Sequence != 3 {
		t.Fatalf("Sequence = %d, want 3", ob.Sequence)
	}
}

func TestDeleteOfAbsentLevelNoOpsButIncrementsSequence(t *testing.T) {
	t.Parallel()
	s := NewStore()
	sym := types.Symbol("ETH-PERP")

	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaDelete, Side: types.Buy, Price: 42})

	ob, ok := s.Snapshot(sym, 0, 5)
	if !ok {
		t.Fatalf("Snapshot() ok = false")
	}
	if ob.Sequence != 1 {
		t.Fatalf("Sequence = %d, want 1", ob.Sequence)
	}
	if len(ob.Bids) != 0 {
		t.Fatalf("Bids = %+v, want empty", ob.Bids)
	}
	if s.MalformedCount() != 1 {
		t.Fatalf("MalformedCount() = %d, want 1", s.MalformedCount())
	}
}

func TestZeroQuantityUpdateActsAsDelete(t *testing.T) {
	t.Parallel()
	s := NewStore()
	sym := types.Symbol("BTC-PERP")

	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Sell, Price: 100, Quantity: 1})
	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaUpdate, Side: types.Sell, Price: 100, Quantity: 0})

	ob, _ := s.Snapshot(sym, 0, 5)
	if len(ob.Asks) != 0 {
		t.Fatalf("Asks = %+v, want empty after zero-quantity update", ob.Asks)
	}
}

// TestClearIdempotence is spec.md's "Book idempotence on Clear" law.
func TestClearIdempotence(t *testing.T) {
	t.Parallel()
	s := NewStore()
	sym := types.Symbol("BTC-PERP")

	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Buy, Price: 100, Quantity: 1})
	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaClear})
	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaClear})

	ob, _ := s.Snapshot(sym, 0, 5)
	if len(ob.Bids) != 0 || len(ob.Asks) != 0 {
		t.Fatalf("book not empty after double Clear: %+v", ob)
	}
	if ob.Sequence != 3 {
		t.Fatalf("Sequence = %d, want 3 (1 insert + 2 clears)", ob.Sequence)
	}
}

func TestDepthBound(t *testing.T) {
	t.Parallel()
	s := NewStore()
	sym := types.Symbol("BTC-PERP")

	for i := 0; i < 30; i++ {
		s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Buy, Price: float64(100 + i), Quantity: 1})
	}

	ob, _ := s.Snapshot(sym, 0, DefaultDepth)
	if len(ob.Bids) != DefaultDepth {
		t.Fatalf("len(Bids) = %d, want %d", len(ob.Bids), DefaultDepth)
	}
	// Best bid (highest price) must be first.
	if ob.Bids[0].Price != 129 {
		t.Fatalf("Bids[0].Price = %v, want 129 (highest of 100..129)", ob.Bids[0].Price)
	}
}

func TestCrossedBookMarkedStale(t *testing.T) {
	t.Parallel()
	s := NewStore()
	sym := types.Symbol("BTC-PERP")

	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Buy, Price: 100, Quantity: 1})
	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaInsert, Side: types.Sell, Price: 99, Quantity: 1})

	ob, _ := s.Snapshot(sym, 0, 5)
	if !ob.Stale {
		t.Fatalf("Stale = false for a crossed book")
	}

	s.ApplyDelta(sym, types.BookDelta{Kind: types.DeltaClear})
	ob, _ = s.Snapshot(sym, 0, 5)
	if ob.Stale {
		t.Fatalf("Stale = true after Clear")
	}
}
