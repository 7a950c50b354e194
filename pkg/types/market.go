package types

import "sort"

// Symbol is a venue-scoped instrument identifier, e.g. "BTC-PERP".
type Symbol = string

// Side represents the direction of an order or a book level.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "Sell"
	}
	return "Buy"
}

// Level is a single price/quantity pair on one side of a book. Quantity is
// always non-negative; a level with zero quantity does not exist on the
// book (callers remove it instead of storing a zero).
type Level struct {
	Price    float64
	Quantity float64
}

// DeltaKind tags the mutation a BookDelta represents.
type DeltaKind int

const (
	DeltaInsert DeltaKind = iota
	DeltaUpdate
	DeltaDelete
	DeltaClear
)

// BookDelta is a single venue-sourced mutation to one symbol's book.
// Quantity is ignored for Delete and Clear. A Quantity of zero on Insert
// or Update is equivalent to Delete, per spec.
type BookDelta struct {
	Kind     DeltaKind
	Side     Side
	Price    float64
	Quantity float64
}

// OrderBook is a depth-bounded, price-ordered snapshot of one symbol's
// order book. Bids are returned descending by price, asks ascending.
// Sequence increases by exactly one for every delta applied upstream by
// the book maintainer — it is not recomputed here.
type OrderBook struct {
	Symbol      Symbol
	TimestampNs int64
	Bids        []Level
	Asks        []Level
	Sequence    uint64
	// Stale is set by the book maintainer when the book is observed
	// crossed (best bid >= best ask) after a mutation, and cleared on
	// the next Clear or fully consistent snapshot. Feature computation
	// treats a stale symbol as ineligible for the current batch.
	Stale bool
}

// BestBid returns the highest bid level, or false if bids are empty.
func (b *OrderBook) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask level, or false if asks are empty.
func (b *OrderBook) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// MidPrice returns the midpoint of the best bid and ask, or false if
// either side is empty.
func (b *OrderBook) MidPrice() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// SpreadBps returns the ask-minus-bid spread in basis points of mid, or
// false if either side is empty.
func (b *OrderBook) SpreadBps() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	mid := (bid.Price + ask.Price) / 2
	if mid == 0 {
		return 0, false
	}
	return (ask.Price - bid.Price) / mid * 10000, true
}

// Crossed reports whether the book is currently crossed: a best bid at or
// above the best ask. A crossed book is the trigger for marking Stale.
func (b *OrderBook) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return false
	}
	return bid.Price >= ask.Price
}

// SortBids sorts levels descending by price, in place.
func SortBids(levels []Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
}

// SortAsks sorts levels ascending by price, in place.
func SortAsks(levels []Level) {
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
}

// Trade is a single executed print on a venue, used both for recent-trade
// context in MarketSnapshot and for fill reporting.
type Trade struct {
	Symbol      Symbol
	TimestampNs int64
	Price       float64
	Quantity    float64
	Side        Side
	TradeID     string
}

// MarketSnapshot is an immutable, point-in-time view of a symbol's market
// state: the current book plus a bounded ring of recent trades and the
// venue-reported derivatives context. Once published by the book
// maintainer it is never mutated — consumers that need a fresher view
// wait for the next snapshot.
type MarketSnapshot struct {
	TimestampNs    int64
	Symbol         Symbol
	OrderBook      OrderBook
	RecentTrades   []Trade
	FundingRateBps *float64
	OpenInterest   *float64
	Volume24h      float64
}
