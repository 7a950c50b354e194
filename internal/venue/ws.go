package venue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hft-engine/internal/book"
	"hft-engine/pkg/types"
)

const (
	wsPingInterval   = 50 * time.Second
	wsReadTimeout    = 90 * time.Second
	wsWriteTimeout   = 10 * time.Second
	wsMaxReconnect   = 30 * time.Second
	wsSnapshotBuffer = 256
	wsRecentTrades   = 50
)

// wsBookDelta is the wire shape of a single book mutation pushed by the
// venue's market-data channel.
type wsBookDelta struct {
	EventType string  `json:"event_type"`
	Symbol    string  `json:"symbol"`
	Kind      string  `json:"kind"` // insert | update | delete | clear
	Side      string  `json:"side"` // buy | sell
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
}

// wsTrade is the wire shape of a single executed print.
type wsTrade struct {
	EventType   string  `json:"event_type"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Side        string  `json:"side"`
	TradeID     string  `json:"trade_id"`
	TimestampNs int64   `json:"timestamp_ns"`
}

// wsSubscribeMsg requests order book and trade updates for a symbol set.
type wsSubscribeMsg struct {
	Operation string   `json:"operation"`
	Symbols   []string `json:"symbols"`
	Channel   string   `json:"channel"` // "book" | "trades"
}

// feed is the market-data half of the Hyperliquid adapter: a
// reconnecting WebSocket that feeds every delta into a book.Store and
// republishes a fresh MarketSnapshot on the symbol's snapshot channel
// after every mutation. Grounded on the reference engine's two-channel
// WSFeed (market/user split, exponential 1s-30s backoff, subscription
// replay on reconnect) but collapsed to one feed since this adapter has
// no authenticated user channel of its own — fills are read back via the
// REST order-status poll, not a push channel.
type feed struct {
	url  string
	conn *websocket.Conn
	connMu sync.Mutex

	subscribedMu sync.RWMutex
	orderbookSyms map[string]bool
	tradeSyms     map[string]bool

	store      *book.Store
	snapshots  chan types.MarketSnapshot

	tradesMu sync.Mutex
	trades   map[types.Symbol][]types.Trade

	logger *slog.Logger
}

func newFeed(url string, store *book.Store, logger *slog.Logger) *feed {
	return &feed{
		url:           url,
		orderbookSyms: make(map[string]bool),
		tradeSyms:     make(map[string]bool),
		store:         store,
		snapshots:     make(chan types.MarketSnapshot, wsSnapshotBuffer),
		trades:        make(map[types.Symbol][]types.Trade),
		logger:        logger.With("component", "venue-ws"),
	}
}

func (f *feed) snapshotReceiver() <-chan types.MarketSnapshot { return f.snapshots }

// run connects and maintains the feed with exponential backoff (1s to
// wsMaxReconnect), re-subscribing to every tracked symbol after each
// reconnect. Blocks until ctx is cancelled.
func (f *feed) run(ctx context.Context) {
	backoff := time.Second
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("market data feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnect {
			backoff = wsMaxReconnect
		}
	}
}

func (f *feed) subscribeOrderbook(symbols []types.Symbol) error {
	f.subscribedMu.Lock()
	for _, s := range symbols {
		f.orderbookSyms[s] = true
	}
	f.subscribedMu.Unlock()
	return f.writeJSON(wsSubscribeMsg{Operation: "subscribe", Symbols: symbols, Channel: "book"})
}

func (f *feed) subscribeTrades(symbols []types.Symbol) error {
	f.subscribedMu.Lock()
	for _, s := range symbols {
		f.tradeSyms[s] = true
	}
	f.subscribedMu.Unlock()
	return f.writeJSON(wsSubscribeMsg{Operation: "subscribe", Symbols: symbols, Channel: "trades"})
}

func (f *feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return types.WrapError(types.ErrWebSocket, "dial venue market data feed", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.resubscribeAll(); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx)

	f.logger.Info("market data feed connected")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return types.WrapError(types.ErrWebSocket, "read venue market data feed", err)
		}
		f.dispatch(msg)
	}
}

func (f *feed) resubscribeAll() error {
	f.subscribedMu.RLock()
	bookSyms := keysOf(f.orderbookSyms)
	tradeSyms := keysOf(f.tradeSyms)
	f.subscribedMu.RUnlock()

	if len(bookSyms) > 0 {
		if err := f.writeJSON(wsSubscribeMsg{Operation: "subscribe", Symbols: bookSyms, Channel: "book"}); err != nil {
			return err
		}
	}
	if len(tradeSyms) > 0 {
		if err := f.writeJSON(wsSubscribeMsg{Operation: "subscribe", Symbols: tradeSyms, Channel: "trades"}); err != nil {
			return err
		}
	}
	return nil
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (f *feed) dispatch(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json feed message")
		return
	}

	switch envelope.EventType {
	case "book_delta":
		var evt wsBookDelta
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal book_delta", "error", err)
			return
		}
		f.applyDelta(evt)

	case "trade":
		var evt wsTrade
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Error("unmarshal trade", "error", err)
			return
		}
		f.applyTrade(evt)

	default:
		f.logger.Debug("ignoring unknown feed event", "type", envelope.EventType)
	}
}

func (f *feed) applyDelta(evt wsBookDelta) {
	delta := types.BookDelta{
		Kind:     deltaKindFromWire(evt.Kind),
		Side:     sideFromWire(evt.Side),
		Price:    evt.Price,
		Quantity: evt.Quantity,
	}
	f.store.ApplyDelta(evt.Symbol, delta)
	f.publishSnapshot(evt.Symbol)
}

func (f *feed) applyTrade(evt wsTrade) {
	trade := types.Trade{
		Symbol:      evt.Symbol,
		TimestampNs: evt.TimestampNs,
		Price:       evt.Price,
		Quantity:    evt.Quantity,
		Side:        sideFromWire(evt.Side),
		TradeID:     evt.TradeID,
	}

	f.tradesMu.Lock()
	ring := append(f.trades[evt.Symbol], trade)
	if len(ring) > wsRecentTrades {
		ring = ring[len(ring)-wsRecentTrades:]
	}
	f.trades[evt.Symbol] = ring
	f.tradesMu.Unlock()
}

// publishSnapshot materialises the symbol's current book (plus recent
// trades) and pushes it onto the snapshot channel, dropping on a full
// buffer — the engine's own ingest stage is the authority on backpressure
// handling (spec §4.1); the feed itself never blocks on a slow consumer.
func (f *feed) publishSnapshot(symbol types.Symbol) {
	ob, ok := f.store.Snapshot(symbol, time.Now().UnixNano(), book.DefaultDepth)
	if !ok {
		return
	}

	f.tradesMu.Lock()
	trades := append([]types.Trade(nil), f.trades[symbol]...)
	f.tradesMu.Unlock()

	snap := types.MarketSnapshot{
		TimestampNs:  ob.TimestampNs,
		Symbol:       symbol,
		OrderBook:    ob,
		RecentTrades: trades,
	}

	select {
	case f.snapshots <- snap:
	default:
		f.logger.Warn("feed snapshot buffer full, dropping", "symbol", symbol)
	}
}

func (f *feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *feed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return types.NewError(types.ErrWebSocket, "market data feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return f.conn.WriteJSON(v)
}

func (f *feed) close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func deltaKindFromWire(k string) types.DeltaKind {
	switch k {
	case "update":
		return types.DeltaUpdate
	case "delete":
		return types.DeltaDelete
	case "clear":
		return types.DeltaClear
	default:
		return types.DeltaInsert
	}
}

func sideFromWire(s string) types.Side {
	if s == "sell" {
		return types.Sell
	}
	return types.Buy
}
