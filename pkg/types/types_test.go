package types

import "testing"

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind        ErrKind
		retryable   bool
		critical    bool
	}{
		{ErrHTTP, true, false},
		{ErrWebSocket, true, false},
		{ErrRateLimit, true, false},
		{ErrTimeout, true, false},
		{ErrRiskCheck, false, true},
		{ErrAuthentication, false, true},
		{ErrInvalidCredentials, false, true},
		{ErrModel, false, false},
		{ErrInternal, false, false},
	}

	for _, tt := range tests {
		e := NewError(tt.kind, "boom")
		if got := e.IsRetryable(); got != tt.retryable {
			t.Errorf("%v.IsRetryable() = %v, want %v", tt.kind, got, tt.retryable)
		}
		if got := e.IsCritical(); got != tt.critical {
			t.Errorf("%v.IsCritical() = %v, want %v", tt.kind, got, tt.critical)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := NewError(ErrInternal, "root cause")
	wrapped := WrapError(ErrModel, "load failed", cause)

	if wrapped.Unwrap() != cause {
		t.Fatalf("Unwrap() did not return the wrapped cause")
	}
	if wrapped.Error() == "" {
		t.Fatalf("Error() returned empty string")
	}
}

func TestOrderBookMidAndSpread(t *testing.T) {
	t.Parallel()

	book := OrderBook{
		Symbol: "BTC-PERP",
		Bids:   []Level{{Price: 49990, Quantity: 1}},
		Asks:   []Level{{Price: 50010, Quantity: 1}},
	}

	mid, ok := book.MidPrice()
	if !ok || mid != 50000 {
		t.Fatalf("MidPrice() = %v, %v; want 50000, true", mid, ok)
	}

	spread, ok := book.SpreadBps()
	if !ok {
		t.Fatalf("SpreadBps() ok = false")
	}
	want := (50010.0 - 49990.0) / 50000.0 * 10000.0
	if spread != want {
		t.Fatalf("SpreadBps() = %v, want %v", spread, want)
	}
}

func TestOrderBookEmptySideHasNoMid(t *testing.T) {
	t.Parallel()

	book := OrderBook{Symbol: "BTC-PERP"}
	if _, ok := book.MidPrice(); ok {
		t.Fatalf("MidPrice() ok = true for empty book")
	}
}

func TestOrderBookCrossed(t *testing.T) {
	t.Parallel()

	book := OrderBook{
		Bids: []Level{{Price: 100, Quantity: 1}},
		Asks: []Level{{Price: 99, Quantity: 1}},
	}
	if !book.Crossed() {
		t.Fatalf("Crossed() = false, want true")
	}
}

func TestCostModelNetEdge(t *testing.T) {
	t.Parallel()

	costs := CostModel{TakerFeeBps: 5, MakerFeeBps: 2, MakerRebateBps: 1, ImpactBps: 2, SlippageBufferBps: 1}
	if got := costs.NetEdgeTaker(15); got != 7 {
		t.Fatalf("NetEdgeTaker(15) = %v, want 7", got)
	}
}
