package types

import "context"

// MarketDataStream is the market-data half of a venue adapter: subscribe
// to symbols and drain published snapshots. Implementations own their own
// reconnect policy; SnapshotReceiver is stable across reconnects.
type MarketDataStream interface {
	SubscribeOrderbook(ctx context.Context, symbols []Symbol) error
	SubscribeTrades(ctx context.Context, symbols []Symbol) error
	SnapshotReceiver() <-chan MarketSnapshot
}

// AccountData is the account/position-query half of a venue adapter.
type AccountData interface {
	Balances(ctx context.Context) (map[string]Balance, error)
	Positions(ctx context.Context) ([]Position, error)
	FeeTier(ctx context.Context) (FeeTier, error)
	Leverage(ctx context.Context) (float64, error)
}

// OrderRouter is the order-execution half of a venue adapter.
type OrderRouter interface {
	SendOrder(ctx context.Context, order OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context, symbol Symbol) error
	GetOrder(ctx context.Context, orderID string) (OrderAck, error)
}

// MarketInfo is the reference-data half of a venue adapter. A venue with
// no derivatives (e.g. an equity-only venue) may return a NotFound *Error
// from FundingRate/OpenInterest rather than implementing a dummy value.
type MarketInfo interface {
	ListSymbols(ctx context.Context) ([]Symbol, error)
	SearchSymbols(ctx context.Context, prefix string) ([]Symbol, error)
	FundingRate(ctx context.Context, symbol Symbol) (float64, error)
	OpenInterest(ctx context.Context, symbol Symbol) (float64, error)
	Volume24h(ctx context.Context, symbol Symbol) (float64, error)
}

// ExchangeAdapter composes the four capability sets into one venue
// connection. Implementers model it as four narrow interfaces rather than
// one monolith so fakes used in tests only need to satisfy the capability
// under test.
type ExchangeAdapter interface {
	MarketDataStream
	AccountData
	OrderRouter
	MarketInfo

	Venue() string
	IsConnected() bool
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// SymbolUniverse is the read-only symbol list the engine is constructed
// with. Scoring and periodic refresh of the universe is an external
// collaborator's responsibility — the engine only consumes the result.
type SymbolUniverse struct {
	Symbols []Symbol
}

func (u SymbolUniverse) Contains(symbol Symbol) bool {
	for _, s := range u.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
