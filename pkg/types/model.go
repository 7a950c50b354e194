package types

// FeatureVec is the fixed-width numeric feature set computed per symbol by
// the feature batcher (C3) and consumed by the inference pool (C4) and the
// router (C6). The field order here is the convention the feature kernel
// and the model sessions that consume it both rely on — there is
// deliberately no explicit schema version attached; see DESIGN.md.
type FeatureVec struct {
	TimestampNs   int64
	Symbol        Symbol
	MidPrice      float64
	SpreadBps     float64
	OFI1s         float64
	OBI1s         float64
	DepthImbalance float64
	DepthA        float64
	DepthBeta     float64
	RealizedVol5s float64
	ATR30s        float64
	FundingBps8h  float64
	ImpactBps1Pct float64
	Microprice    float64
	VWAPRatio     float64
	// Eligible is false when the snapshot the vector was computed from
	// was stale or one-sided; C4/C6 must skip ineligible vectors.
	Eligible bool
}

// Prediction is a single model (or ensemble) output for a symbol.
type Prediction struct {
	TimestampNs  int64
	Symbol       Symbol
	EdgeBps      float64
	Confidence   float64 // clamped to [0, 1]
	HorizonMs    uint64
	ModelVersion string
}

// CostModel is the fee/impact/slippage bundle used to net a raw edge down
// to a tradeable edge.
type CostModel struct {
	TakerFeeBps      float64
	MakerFeeBps      float64
	MakerRebateBps   float64
	ImpactBps        float64
	SlippageBufferBps float64
}

// TotalCostTaker is the all-in cost of crossing the spread as a taker.
func (c CostModel) TotalCostTaker() float64 {
	return c.TakerFeeBps + c.ImpactBps + c.SlippageBufferBps
}

// TotalCostMaker is the all-in cost of resting as a maker, net of rebate.
func (c CostModel) TotalCostMaker() float64 {
	return c.MakerFeeBps - c.MakerRebateBps + c.ImpactBps
}

// NetEdgeTaker nets the taker cost bundle out of a raw edge.
func (c CostModel) NetEdgeTaker(edgeBps float64) float64 {
	return edgeBps - c.TotalCostTaker()
}

// NetEdgeMaker nets the maker cost bundle out of a raw edge.
func (c CostModel) NetEdgeMaker(edgeBps float64) float64 {
	return edgeBps - c.TotalCostMaker()
}

// GateParams configures the trade gate's ordered checks (C5).
type GateParams struct {
	MinEdgeBps    float64
	MinConfidence float64
	MaxHoldS      float64
	MaxSpreadBps  float64
	Enabled       bool
}

// DefaultGateParams matches the reference engine's defaults.
func DefaultGateParams() GateParams {
	return GateParams{
		MinEdgeBps:    5.0,
		MinConfidence: 0.5,
		MaxHoldS:      30.0,
		MaxSpreadBps:  10.0,
		Enabled:       true,
	}
}

// OrderStyle is the router's chosen execution style.
type OrderStyle int

const (
	MakerPassive OrderStyle = iota
	TakerNow
	Sniper
)

func (s OrderStyle) String() string {
	switch s {
	case TakerNow:
		return "TakerNow"
	case Sniper:
		return "Sniper"
	default:
		return "MakerPassive"
	}
}

// RouteDecision is the router's (C6) output for a single prediction.
type RouteDecision struct {
	Style         OrderStyle
	SizeFraction  float64 // in [0, 0.10]
	HoldDurationS float64 // in [2, 60]
	Urgency       float64 // in [0, 1]
	ShouldTrade   bool
	Reason        string
}
