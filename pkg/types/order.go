package types

// OrderType enumerates the supported order lifecycles across venues.
type OrderType int

const (
	OrderMarket OrderType = iota
	OrderLimit
	OrderPostOnly
	OrderIOC
	OrderFOK
)

// TimeInForce enumerates how long a resting order remains eligible to
// match.
type TimeInForce int

const (
	TIFGTC TimeInForce = iota
	TIFIOC
	TIFFOK
	TIFGTX
)

// OrderRequest is what the engine submits to a venue adapter's
// OrderRouter capability after the gate and router have both approved a
// trade.
type OrderRequest struct {
	ClientID      string
	Symbol        Symbol
	Side          Side
	OrderType     OrderType
	Quantity      float64
	Price         *float64
	ReduceOnly    bool
	TimeInForce   TimeInForce
}

// OrderStatus mirrors a venue order's lifecycle state.
type OrderStatus int

const (
	StatusPending OrderStatus = iota
	StatusAccepted
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

// OrderAck is the venue adapter's acknowledgment of an OrderRequest.
type OrderAck struct {
	VenueOrderID string
	ClientID     string
	Status       OrderStatus
	TimestampNs  int64
}

// Balance is a single-asset account balance as reported by a venue.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
	Total  float64
}

// FeeTier is the venue-reported fee schedule for the current account.
type FeeTier struct {
	MakerFeeBps float64
	TakerFeeBps float64
	Volume30d   float64
}
