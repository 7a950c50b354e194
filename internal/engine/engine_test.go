package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hft-engine/internal/features"
	"hft-engine/internal/gate"
	"hft-engine/internal/inference"
	"hft-engine/internal/risk"
	"hft-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdapter implements types.ExchangeAdapter with a mutex-guarded slice
// recording submitted orders; every other capability is a harmless stub.
type fakeAdapter struct {
	mu     sync.Mutex
	orders []types.OrderRequest
}

func (f *fakeAdapter) SubmittedOrders() []types.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.OrderRequest, len(f.orders))
	copy(out, f.orders)
	return out
}

func (f *fakeAdapter) SubscribeOrderbook(ctx context.Context, symbols []types.Symbol) error { return nil }
func (f *fakeAdapter) SubscribeTrades(ctx context.Context, symbols []types.Symbol) error     { return nil }
func (f *fakeAdapter) SnapshotReceiver() <-chan types.MarketSnapshot                         { return nil }

func (f *fakeAdapter) Balances(ctx context.Context) (map[string]types.Balance, error) { return nil, nil }
func (f *fakeAdapter) Positions(ctx context.Context) ([]types.Position, error)         { return nil, nil }
func (f *fakeAdapter) FeeTier(ctx context.Context) (types.FeeTier, error)              { return types.FeeTier{}, nil }
func (f *fakeAdapter) Leverage(ctx context.Context) (float64, error)                   { return 1, nil }

func (f *fakeAdapter) SendOrder(ctx context.Context, order types.OrderRequest) (types.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return types.OrderAck{Status: types.StatusAccepted}, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) error       { return nil }
func (f *fakeAdapter) CancelAll(ctx context.Context, symbol types.Symbol) error    { return nil }
func (f *fakeAdapter) GetOrder(ctx context.Context, orderID string) (types.OrderAck, error) {
	return types.OrderAck{}, nil
}

func (f *fakeAdapter) ListSymbols(ctx context.Context) ([]types.Symbol, error)       { return nil, nil }
func (f *fakeAdapter) SearchSymbols(ctx context.Context, p string) ([]types.Symbol, error) {
	return nil, nil
}
func (f *fakeAdapter) FundingRate(ctx context.Context, s types.Symbol) (float64, error)  { return 0, nil }
func (f *fakeAdapter) OpenInterest(ctx context.Context, s types.Symbol) (float64, error) { return 0, nil }
func (f *fakeAdapter) Volume24h(ctx context.Context, s types.Symbol) (float64, error)    { return 0, nil }

func (f *fakeAdapter) Venue() string                        { return "fake" }
func (f *fakeAdapter) IsConnected() bool                    { return true }
func (f *fakeAdapter) Connect(ctx context.Context) error    { return nil }
func (f *fakeAdapter) Disconnect(ctx context.Context) error { return nil }

type fakeSession struct {
	edge, conf float64
}

func (s fakeSession) Run(types.FeatureVec) (float64, float64, error) { return s.edge, s.conf, nil }

func newTestEngine(t *testing.T) (*Engine, *fakeAdapter) {
	t.Helper()

	pool := inference.NewPool(100*time.Millisecond, testLogger())
	pool.LoadCrypto(&inference.ModelSet{
		IDEC:        fakeSession{edge: 20, conf: 0.9},
		Transformer: fakeSession{edge: 20, conf: 0.9},
		GBDT:        fakeSession{edge: 20, conf: 0.9},
	})

	riskMgr := risk.New(types.RiskLimits{
		MaxTotalNotional:     1_000_000,
		MaxNotionalPerSymbol: 1_000_000,
		MaxLossPerDay:        10_000,
	}, testLogger())

	g := gate.New(types.GateParams{
		MinEdgeBps:    5,
		MinConfidence: 0.5,
		MaxHoldS:      30,
		MaxSpreadBps:  10,
		Enabled:       true,
	})

	adapter := &fakeAdapter{}

	e := New(Config{
		Mode:     MLTraditional,
		Universe: types.SymbolUniverse{Symbols: []types.Symbol{"BTC-PERP"}},
		Category: inference.Crypto,
		Costs:    types.CostModel{TakerFeeBps: 1, MakerFeeBps: 0.5},
		Adapter:  adapter,
		Kernel:   features.NewKernel(features.ScalarOnly),
		Pool:     pool,
		Gate:     g,
		Risk:     riskMgr,
		Alert:    nil,
		Logger:   testLogger(),
	})

	return e, adapter
}

func TestEngineReadyWithLoadedModels(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)
	if !e.Ready() {
		t.Fatal("Ready() = false, want true with loaded crypto models")
	}
}

func TestEngineNotReadyFallsBackToPaper(t *testing.T) {
	t.Parallel()
	pool := inference.NewPool(100*time.Millisecond, testLogger())
	riskMgr := risk.New(types.DefaultRiskLimits(), testLogger())
	g := gate.New(types.DefaultGateParams())

	e := New(Config{
		Mode:     MLTraditional,
		Category: inference.Crypto,
		Adapter:  &fakeAdapter{},
		Kernel:   features.NewKernel(features.ScalarOnly),
		Pool:     pool,
		Gate:     g,
		Risk:     riskMgr,
		Logger:   testLogger(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = e.Run(ctx)

	if e.getRunMode() != Paper {
		t.Fatalf("run mode = %v, want Paper when models aren't loaded", e.getRunMode())
	}
}

func TestEngineProcessOneSubmitsOrderOnApprovedTrade(t *testing.T) {
	t.Parallel()
	e, adapter := newTestEngine(t)

	fv := types.FeatureVec{
		Symbol:    "BTC-PERP",
		MidPrice:  50000,
		SpreadBps: 1,
		OFI1s:     5, // positive OFI -> Buy side
		Eligible:  true,
	}

	e.processOne(context.Background(), fv)

	orders := adapter.SubmittedOrders()
	if len(orders) != 1 {
		t.Fatalf("len(orders) = %d, want 1", len(orders))
	}
	if orders[0].Side != types.Buy {
		t.Fatalf("Side = %v, want Buy for positive OFI", orders[0].Side)
	}
}

func TestEngineProcessOneSellsOnNegativeOFI(t *testing.T) {
	t.Parallel()
	e, adapter := newTestEngine(t)

	fv := types.FeatureVec{
		Symbol:    "BTC-PERP",
		MidPrice:  50000,
		SpreadBps: 1,
		OFI1s:     -5,
		Eligible:  true,
	}

	e.processOne(context.Background(), fv)

	orders := adapter.SubmittedOrders()
	if len(orders) != 1 {
		t.Fatalf("len(orders) = %d, want 1", len(orders))
	}
	if orders[0].Side != types.Sell {
		t.Fatalf("Side = %v, want Sell for negative OFI", orders[0].Side)
	}
}

func TestEnginePaperModeNeverSubmits(t *testing.T) {
	t.Parallel()
	e, adapter := newTestEngine(t)
	e.SetRunMode(Paper)

	fv := types.FeatureVec{Symbol: "BTC-PERP", MidPrice: 50000, SpreadBps: 1, OFI1s: 5, Eligible: true}
	e.processOne(context.Background(), fv)

	if len(adapter.SubmittedOrders()) != 0 {
		t.Fatal("paper mode submitted an order")
	}
}
