// Package book implements the order-book maintainer (C1): a per-symbol,
// depth-bounded L2 book built incrementally from venue deltas.
//
// Each symbol gets two ordered price-indexed maps (bids descending, asks
// ascending), guarded by a reader-biased lock — to_snapshot calls are
// brief and frequent, apply_delta calls hold the lock exclusively but
// only for the duration of a single map mutation.
package book

import (
	"sync"

	"hft-engine/pkg/types"
)

// DefaultDepth is the default number of levels materialised per side by
// Snapshot, per spec.
const DefaultDepth = 20

// symbolBook holds the live price-indexed levels for one symbol.
type symbolBook struct {
	mu       sync.RWMutex
	bids     map[float64]float64 // price -> quantity
	asks     map[float64]float64
	sequence uint64
	stale    bool
}

// Store maintains one symbolBook per symbol, created lazily on first
// delta. Store itself is safe for concurrent use; symbols are looked up
// under a short-lived map lock, then mutated/read under their own lock.
type Store struct {
	mu      sync.RWMutex
	symbols map[types.Symbol]*symbolBook

	// malformed counts deltas dropped for referring to an absent level on
	// Delete, or any other non-fatal anomaly. Never causes a failure.
	malformed uint64
}

// NewStore creates an empty book store.
func NewStore() *Store {
	return &Store{symbols: make(map[types.Symbol]*symbolBook)}
}

func (s *Store) getOrCreate(symbol types.Symbol) *symbolBook {
	s.mu.RLock()
	sb, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return sb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sb, ok = s.symbols[symbol]; ok {
		return sb
	}
	sb = &symbolBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
	s.symbols[symbol] = sb
	return sb
}

// ApplyDelta applies a single venue-sourced mutation to a symbol's book.
// Venue sequence is the authority: deltas are applied in the order they
// arrive regardless of any embedded timestamp. Every mutation — including
// a Delete of an already-absent level — increments the symbol's sequence
// by exactly one.
func (s *Store) ApplyDelta(symbol types.Symbol, delta types.BookDelta) {
	sb := s.getOrCreate(symbol)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	switch delta.Kind {
	case types.DeltaInsert, types.DeltaUpdate:
		side := sb.bids
		if delta.Side == types.Sell {
			side = sb.asks
		}
		if delta.Quantity <= 0 {
			delete(side, delta.Price)
		} else {
			side[delta.Price] = delta.Quantity
		}

	case types.DeltaDelete:
		side := sb.bids
		if delta.Side == types.Sell {
			side = sb.asks
		}
		if _, ok := side[delta.Price]; !ok {
			s.incMalformed()
		}
		delete(side, delta.Price)

	case types.DeltaClear:
		sb.bids = make(map[float64]float64)
		sb.asks = make(map[float64]float64)
		sb.stale = false
	}

	sb.sequence++

	if delta.Kind != types.DeltaClear {
		sb.stale = crossed(sb)
	}
}

func crossed(sb *symbolBook) bool {
	bestBid, okBid := bestOf(sb.bids, true)
	bestAsk, okAsk := bestOf(sb.asks, false)
	return okBid && okAsk && bestBid >= bestAsk
}

func bestOf(levels map[float64]float64, wantMax bool) (float64, bool) {
	first := true
	var best float64
	for price := range levels {
		if first || (wantMax && price > best) || (!wantMax && price < best) {
			best = price
			first = false
		}
	}
	return best, !first
}

func (s *Store) incMalformed() {
	s.mu.Lock()
	s.malformed++
	s.mu.Unlock()
}

// MalformedCount returns the number of anomalous (but non-fatal) deltas
// observed so far.
func (s *Store) MalformedCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.malformed
}

// Snapshot materialises the top `depth` levels on each side of a symbol's
// book, sorted bids-descending/asks-ascending, along with the current
// sequence and staleness flag. Returns false if the symbol has never
// received a delta.
func (s *Store) Snapshot(symbol types.Symbol, timestampNs int64, depth int) (types.OrderBook, bool) {
	s.mu.RLock()
	sb, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if !ok {
		return types.OrderBook{}, false
	}

	sb.mu.RLock()
	defer sb.mu.RUnlock()

	bids := topLevels(sb.bids, depth, true)
	asks := topLevels(sb.asks, depth, false)

	return types.OrderBook{
		Symbol:      symbol,
		TimestampNs: timestampNs,
		Bids:        bids,
		Asks:        asks,
		Sequence:    sb.sequence,
		Stale:       sb.stale,
	}, true
}

func topLevels(levels map[float64]float64, depth int, descending bool) []types.Level {
	out := make([]types.Level, 0, len(levels))
	for price, qty := range levels {
		out = append(out, types.Level{Price: price, Quantity: qty})
	}
	if descending {
		types.SortBids(out)
	} else {
		types.SortAsks(out)
	}
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}
