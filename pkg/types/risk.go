package types

// RiskLimits bounds what the risk manager (C7) will allow.
type RiskLimits struct {
	MaxNotionalPerSymbol    float64
	MaxTotalNotional        float64
	MaxLeverage             float64
	MaxLossPerDay           float64
	MaxPositionConcentration float64 // fraction of portfolio
}

// DefaultRiskLimits matches the reference engine's defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxNotionalPerSymbol:    100_000.0,
		MaxTotalNotional:        500_000.0,
		MaxLeverage:             3.0,
		MaxLossPerDay:           10_000.0,
		MaxPositionConcentration: 0.25,
	}
}

// RiskState is the derived, point-in-time view of the risk manager's
// internal state, returned by value so readers never hold its lock.
type RiskState struct {
	CurrentNotional    float64
	MaxNotional        float64
	DailyPnl           float64
	DailyLossLimit     float64
	KillSwitchActive   bool
	DailyLossExceeded  bool
}

// Position is a single symbol's signed holding, as reported by a venue
// adapter on connect or updated on fills.
type Position struct {
	Symbol            Symbol
	Size              float64 // signed: positive long, negative short
	EntryPrice        float64
	MarkPrice         float64
	UnrealizedPnl     float64
	RealizedPnl       float64
	Leverage          float64
	MarginUsed        float64
	LiquidationPrice  *float64
}

// Notional returns the absolute notional exposure of the position.
func (p Position) Notional() float64 {
	size := p.Size
	if size < 0 {
		size = -size
	}
	return size * p.MarkPrice
}
