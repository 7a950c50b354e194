// Package router implements the router (C6): run the trade gate on a
// prediction and, when it passes, choose an execution style, position
// size fraction, and hold duration.
package router

import (
	"hft-engine/internal/gate"
	"hft-engine/pkg/types"
)

// RiskChecker is the narrow risk-manager capability the router needs: the
// current derived risk state, which Decide hands to the gate. It is
// satisfied by internal/risk.Manager.
type RiskChecker interface {
	GetState() types.RiskState
}

// Router runs the gate on a prediction and decides how to execute it when
// the gate passes. It owns no state of its own — all inputs are passed per
// call.
type Router struct {
	gate *gate.Gate
	risk RiskChecker
}

func New(g *gate.Gate, risk RiskChecker) *Router {
	return &Router{gate: g, risk: risk}
}

// Decide evaluates the gate, then — on Pass — computes style, size, and
// hold time. On Reject it returns a decision with ShouldTrade=false,
// SizeFraction=0, and the gate's reason.
func (r *Router) Decide(pred types.Prediction, features types.FeatureVec, costs types.CostModel) types.RouteDecision {
	risk := r.risk.GetState()
	res := r.gate.Check(pred, features, costs, risk)

	if !res.Pass {
		return types.RouteDecision{ShouldTrade: false, SizeFraction: 0, Reason: res.Reason}
	}

	style := selectStyle(res.Urgency, features.SpreadBps)
	size := computeSize(pred.Confidence, res.Urgency)
	hold := computeHoldTime(pred.HorizonMs, features.SpreadBps, res.Urgency)

	return types.RouteDecision{
		Style:         style,
		SizeFraction:  size,
		HoldDurationS: hold,
		Urgency:       res.Urgency,
		ShouldTrade:   true,
		Reason:        "",
	}
}

// selectStyle implements spec §4.5's exact thresholds. Note the strict
// inequality on spread: a spread exactly at 3.0 bps does not qualify for
// Sniper, matching Scenario S1 where spread_bps=3.0 selects MakerPassive
// despite urgency > 0.5.
func selectStyle(urgency, spreadBps float64) types.OrderStyle {
	switch {
	case urgency > 0.8:
		return types.TakerNow
	case urgency > 0.5 && spreadBps < 3.0:
		return types.Sniper
	default:
		return types.MakerPassive
	}
}

// computeSize is the Kelly-inspired conservative sizing formula from
// spec §4.5: quadratic in confidence (damps low-conviction trades),
// scaled up by urgency, capped at 10% of whatever notional unit the
// caller applies it to.
func computeSize(confidence, urgency float64) float64 {
	size := 0.02 * confidence * confidence * (1 + 0.5*urgency)
	return clamp(size, 0, 0.10)
}

// computeHoldTime implements spec §4.5's hold-duration formula: half the
// prediction horizon (in seconds), damped by spread width and urgency,
// clamped to the [2, 60] second band the gate and router both assume.
func computeHoldTime(horizonMs uint64, spreadBps, urgency float64) float64 {
	spreadFactor := 1.0
	if spreadBps > 5 {
		spreadFactor = 0.7
	}
	urgencyFactor := 1 - 0.3*urgency

	h := 0.5 * (float64(horizonMs) / 1000) * spreadFactor * urgencyFactor
	return clamp(h, 2, 60)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
