package features

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"hft-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSnapshot(symbol types.Symbol) types.MarketSnapshot {
	return types.MarketSnapshot{
		Symbol: symbol,
		OrderBook: types.OrderBook{
			Symbol: symbol,
			Bids:   []types.Level{{Price: 99, Quantity: 1}},
			Asks:   []types.Level{{Price: 101, Quantity: 1}},
		},
	}
}

// TestBatcherFlushesOnSize verifies the batch-size trigger: len(batch) ==
// batch_size is one of the two valid flush conditions from spec §8.
func TestBatcherFlushesOnSize(t *testing.T) {
	t.Parallel()

	in := make(chan types.MarketSnapshot, 16)
	b := New(in, 3, time.Hour, NewKernel(ScalarOnly), nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	for i := 0; i < 3; i++ {
		in <- newTestSnapshot("BTC-PERP")
	}

	select {
	case batch := <-b.Out():
		if len(batch.Features) != 3 {
			t.Fatalf("len(batch.Features) = %d, want 3", len(batch.Features))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for size-triggered flush")
	}
}

// TestBatcherLiveness is spec.md's batcher liveness law: a flush occurs
// within batch_timeout_ms + delta of the last push, even if the batch
// never reaches batch_size.
func TestBatcherLiveness(t *testing.T) {
	t.Parallel()

	in := make(chan types.MarketSnapshot, 16)
	b := New(in, 100, 50*time.Millisecond, NewKernel(ScalarOnly), nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	in <- newTestSnapshot("BTC-PERP")

	select {
	case batch := <-b.Out():
		if len(batch.Features) != 1 {
			t.Fatalf("len(batch.Features) = %d, want 1", len(batch.Features))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for timeout-triggered flush")
	}
}

func TestBatcherFlushesOnShutdown(t *testing.T) {
	t.Parallel()

	in := make(chan types.MarketSnapshot, 16)
	b := New(in, 100, time.Hour, NewKernel(ScalarOnly), nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	in <- newTestSnapshot("BTC-PERP")
	time.Sleep(10 * time.Millisecond) // let it enter Filling
	cancel()

	select {
	case batch := <-b.Out():
		if len(batch.Features) != 1 {
			t.Fatalf("len(batch.Features) = %d, want 1", len(batch.Features))
		}
	case <-time.After(time.Second):
		t.Fatal("shutdown did not flush the in-progress batch")
	}

	<-done
}
