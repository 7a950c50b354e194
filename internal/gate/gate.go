// Package gate implements the trade gate (C5): the cost- and risk-aware
// accept/reject checkpoint every prediction must clear before the router
// is allowed to size an order.
package gate

import (
	"fmt"

	"hft-engine/pkg/types"
)

// Result is the outcome of a gate Check: either Pass with the computed
// net edge and urgency, or a rejection reason. Reason is empty on Pass.
type Result struct {
	Pass       bool
	NetEdgeBps float64
	Urgency    float64
	Reason     string
}

// Gate evaluates predictions against GateParams and the current risk
// state.
type Gate struct {
	params types.GateParams
}

func New(params types.GateParams) *Gate {
	return &Gate{params: params}
}

// Check runs the ordered checks from spec §4.4. The first failing check
// wins — later checks are not evaluated — so the reported reason is
// always the first violated condition, for diagnostics.
func (g *Gate) Check(pred types.Prediction, features types.FeatureVec, costs types.CostModel, risk types.RiskState) Result {
	if !g.params.Enabled {
		return Result{Reason: "Gate disabled"}
	}
	if pred.Confidence < g.params.MinConfidence {
		return Result{Reason: fmt.Sprintf("Low confidence: %.3f < %.3f", pred.Confidence, g.params.MinConfidence)}
	}
	if features.SpreadBps > g.params.MaxSpreadBps {
		return Result{Reason: fmt.Sprintf("Wide spread: %.2f > %.2f bps", features.SpreadBps, g.params.MaxSpreadBps)}
	}
	netEdge := costs.NetEdgeTaker(pred.EdgeBps)
	if netEdge < g.params.MinEdgeBps {
		return Result{Reason: fmt.Sprintf("Insufficient edge: %.2f < %.2f bps", netEdge, g.params.MinEdgeBps)}
	}
	if risk.KillSwitchActive {
		return Result{Reason: "Kill switch active"}
	}
	if risk.DailyLossExceeded {
		return Result{Reason: "Daily loss limit exceeded"}
	}

	return Result{
		Pass:       true,
		NetEdgeBps: netEdge,
		Urgency:    computeUrgency(pred, features),
	}
}

// computeUrgency implements spec §4.4's exact formula: a weighted blend of
// confidence, spread tightness, and signal strength, clamped to [0, 1].
// The weights deliberately bias urgency toward high-confidence,
// tight-spread, strong-signal conditions.
func computeUrgency(pred types.Prediction, features types.FeatureVec) float64 {
	spreadFactor := max(0, 10-features.SpreadBps) / 10
	signalFactor := min(1, abs(pred.EdgeBps)/20)

	u := 0.4*pred.Confidence + 0.3*spreadFactor + 0.3*signalFactor
	return clamp(u, 0, 1)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
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
