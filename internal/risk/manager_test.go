package risk

import (
	"io"
	"log/slog"
	"testing"

	"hft-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRiskManagerDailyLossTripwire is spec.md Scenario S6.
func TestRiskManagerDailyLossTripwire(t *testing.T) {
	t.Parallel()

	limits := types.DefaultRiskLimits()
	limits.MaxLossPerDay = 5000
	m := New(limits, testLogger())

	m.UpdatePnl(-5001)

	if err := m.CheckLimits("BTC", 1000); err == nil {
		t.Fatalf("CheckLimits() = nil, want daily-loss rejection")
	} else if err.Error() == "" {
		t.Fatalf("empty error message")
	}

	// Still rejects after a large positive PnL update, until the daily
	// window actually resets.
	m.UpdatePnl(10000)
	if err := m.CheckLimits("BTC", 1000); err == nil {
		t.Fatalf("CheckLimits() = nil after partial recovery, want still rejected (daily pnl only resets on boundary crossing)")
	}
}

func TestCheckLimitsKillSwitchDominates(t *testing.T) {
	t.Parallel()

	m := New(types.DefaultRiskLimits(), testLogger())
	m.ActivateKillSwitch()

	if err := m.CheckLimits("BTC", 1); err == nil {
		t.Fatalf("CheckLimits() = nil with kill switch active")
	}
}

func TestCheckLimitsPerSymbolNotional(t *testing.T) {
	t.Parallel()

	limits := types.DefaultRiskLimits()
	limits.MaxNotionalPerSymbol = 1000
	m := New(limits, testLogger())

	m.UpdatePosition(types.Position{Symbol: "BTC", Size: 0.01, MarkPrice: 50_000}) // 500 notional

	if err := m.CheckLimits("BTC", 400); err != nil {
		t.Fatalf("CheckLimits(400) = %v, want ok (500+400=900 <= 1000)", err)
	}
	if err := m.CheckLimits("BTC", 600); err == nil {
		t.Fatalf("CheckLimits(600) = nil, want rejection (500+600=1100 > 1000)")
	}
}

func TestGetStateCurrentNotionalMatchesPositions(t *testing.T) {
	t.Parallel()

	m := New(types.DefaultRiskLimits(), testLogger())
	m.UpdatePosition(types.Position{Symbol: "BTC", Size: 1, MarkPrice: 100})
	m.UpdatePosition(types.Position{Symbol: "ETH", Size: -2, MarkPrice: 50})

	state := m.GetState()
	want := 1*100.0 + 2*50.0
	if state.CurrentNotional != want {
		t.Fatalf("CurrentNotional = %v, want %v", state.CurrentNotional, want)
	}
}

func TestKillSwitchDeactivate(t *testing.T) {
	t.Parallel()

	m := New(types.DefaultRiskLimits(), testLogger())
	m.ActivateKillSwitch()
	if !m.GetState().KillSwitchActive {
		t.Fatalf("KillSwitchActive = false after Activate")
	}
	m.DeactivateKillSwitch()
	if m.GetState().KillSwitchActive {
		t.Fatalf("KillSwitchActive = true after Deactivate")
	}
}
