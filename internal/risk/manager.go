// Package risk implements the risk manager (C7): positions, daily PnL,
// the kill-switch, and the pre-trade notional checks the engine runs
// before each order submission.
//
// Manager is mutated by a single writer — the engine loop, on fills and
// PnL updates — and read by many: the gate (via RiskChecker), the
// telemetry publisher, and operator tooling. A single writer-exclusive
// lock with cheap read snapshots (return by value) is sufficient; there
// is no need for anything fancier at the expected mutation rate.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hft-engine/pkg/types"
)

const dailyResetSeconds = 86_400

// Manager owns the process-wide risk state: the position map, running
// daily PnL, and the kill-switch flag.
type Manager struct {
	mu sync.Mutex

	limits types.RiskLimits

	positions map[types.Symbol]types.Position

	dailyPnl          float64
	dailyStart        time.Time
	dailyLossExceeded bool
	killSwitch        bool

	logger *slog.Logger
}

// New creates a risk manager with the given limits, daily tracking
// starting now.
func New(limits types.RiskLimits, logger *slog.Logger) *Manager {
	return &Manager{
		limits:     limits,
		positions:  make(map[types.Symbol]types.Position),
		dailyStart: time.Now(),
		logger:     logger.With("component", "risk"),
	}
}

// maybeResetDailyLocked resets daily_pnl, the epoch, and the sticky
// daily-loss latch when wall-clock has crossed the 86,400s boundary from
// daily_start. Must be called with the lock held.
func (m *Manager) maybeResetDailyLocked(now time.Time) {
	if now.Sub(m.dailyStart).Seconds() >= dailyResetSeconds {
		m.dailyPnl = 0
		m.dailyStart = now
		m.dailyLossExceeded = false
		m.logger.Info("daily risk window reset")
	}
}

// UpdatePosition replaces (or inserts) a symbol's position, as reported by
// a venue adapter on connect or a fill.
func (m *Manager) UpdatePosition(pos types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Symbol] = pos
}

// UpdatePnl applies a realized or unrealized PnL delta to the running
// daily total. Resets the daily window first if the boundary has been
// crossed, so a delta applied right after midnight starts a fresh day.
// Crossing the daily loss limit latches dailyLossExceeded; a later
// recovering delta does not clear it — only a daily-boundary reset does.
func (m *Manager) UpdatePnl(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetDailyLocked(time.Now())
	m.dailyPnl += delta
	if m.dailyPnl < -m.limits.MaxLossPerDay {
		m.dailyLossExceeded = true
	}
}

// ActivateKillSwitch trips the kill switch. It is sticky across a daily
// reset — only an explicit Deactivate clears it.
func (m *Manager) ActivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.killSwitch {
		m.logger.Warn("kill switch activated")
	}
	m.killSwitch = true
}

// DeactivateKillSwitch clears the kill switch.
func (m *Manager) DeactivateKillSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killSwitch {
		m.logger.Info("kill switch deactivated")
	}
	m.killSwitch = false
}

func (m *Manager) currentNotionalLocked() float64 {
	total := 0.0
	for _, p := range m.positions {
		total += p.Notional()
	}
	return total
}

// GetState returns a point-in-time snapshot of the derived risk state.
// Returned by value: callers never hold the manager's lock.
func (m *Manager) GetState() types.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetDailyLocked(time.Now())

	return types.RiskState{
		CurrentNotional:   m.currentNotionalLocked(),
		MaxNotional:       m.limits.MaxTotalNotional,
		DailyPnl:          m.dailyPnl,
		DailyLossLimit:    m.limits.MaxLossPerDay,
		KillSwitchActive:  m.killSwitch,
		DailyLossExceeded: m.dailyLossExceeded,
	}
}

// CheckLimits implements spec §4.6's ordered pre-trade check: kill-switch,
// then daily-loss, then total notional, then per-symbol notional. Returns
// nil on Ok, or a *types.Error{Kind: ErrRiskCheck} naming the first
// violated limit.
func (m *Manager) CheckLimits(symbol types.Symbol, additionalNotional float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetDailyLocked(time.Now())
	if m.dailyPnl < -m.limits.MaxLossPerDay {
		m.dailyLossExceeded = true
	}

	if m.killSwitch {
		return types.NewError(types.ErrRiskCheck, "Kill switch active")
	}
	if m.dailyLossExceeded {
		return types.NewError(types.ErrRiskCheck, "Daily loss limit exceeded")
	}

	current := m.currentNotionalLocked()
	if current+additionalNotional > m.limits.MaxTotalNotional {
		return types.NewError(types.ErrRiskCheck, fmt.Sprintf(
			"Total notional would exceed limit: %.2f + %.2f > %.2f",
			current, additionalNotional, m.limits.MaxTotalNotional))
	}

	symbolNotional := 0.0
	if pos, ok := m.positions[symbol]; ok {
		symbolNotional = pos.Notional()
	}
	if symbolNotional+additionalNotional > m.limits.MaxNotionalPerSymbol {
		return types.NewError(types.ErrRiskCheck, fmt.Sprintf(
			"Per-symbol notional would exceed limit for %s: %.2f + %.2f > %.2f",
			symbol, symbolNotional, additionalNotional, m.limits.MaxNotionalPerSymbol))
	}

	return nil
}

// Snapshot produces the operator-facing RiskSnapshot published on the
// telemetry /risk route.
func (m *Manager) Snapshot(nowNs int64) types.RiskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeResetDailyLocked(time.Now())

	var gross, net, unrealized, realized, margin float64
	for _, p := range m.positions {
		gross += p.Notional()
		net += p.Size * p.MarkPrice
		unrealized += p.UnrealizedPnl
		realized += p.RealizedPnl
		margin += p.MarginUsed
	}

	return types.RiskSnapshot{
		TimestampNs:      nowNs,
		GrossNotional:    gross,
		NetNotional:      net,
		NumPositions:     len(m.positions),
		TotalMarginUsed:  margin,
		UnrealizedPnl:    unrealized,
		RealizedPnl:      realized,
		TotalPnl:         unrealized + realized,
		DailyPnl:         m.dailyPnl,
		MaxLeverage:      m.limits.MaxLeverage,
		KillSwitchActive: m.killSwitch,
	}
}
