package venue

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"hft-engine/internal/ratelimit"
	"hft-engine/pkg/types"
)

// restClient is the REST half of the Hyperliquid adapter: order entry,
// cancels, and account/reference-data reads. Every call waits on its
// category's rate-limit bucket before issuing the HTTP request, mirroring
// the reference engine's per-endpoint-category limiter.
type restClient struct {
	http   *resty.Client
	auth   *Auth
	rl     *ratelimit.Limiter
	dryRun bool
	nonce  func() int64
}

func newRestClient(baseURL string, auth *Auth, rl *ratelimit.Limiter, dryRun bool) *restClient {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &restClient{
		http:   http,
		auth:   auth,
		rl:     rl,
		dryRun: dryRun,
		nonce:  func() int64 { return time.Now().UnixMilli() },
	}
}

// orderWirePayload is what goes over the wire for a signed exchange
// action; sizes and prices cross the wire as fixed-point decimal strings
// even though the engine's hot path computes everything in float64.
type orderWirePayload struct {
	Symbol      types.Symbol `json:"symbol"`
	Side        string       `json:"side"`
	OrderType   string       `json:"order_type"`
	Price       *string      `json:"price,omitempty"`
	Quantity    string       `json:"quantity"`
	ReduceOnly  bool         `json:"reduce_only"`
	TimeInForce string       `json:"time_in_force"`
	Nonce       int64        `json:"nonce"`
	Signature   string       `json:"signature"`
}

func (c *restClient) sendOrder(ctx context.Context, order types.OrderRequest) (types.OrderAck, error) {
	if c.dryRun {
		return types.OrderAck{
			VenueOrderID: fmt.Sprintf("dry-run-%d", c.nonce()),
			ClientID:     order.ClientID,
			Status:       types.StatusAccepted,
			TimestampNs:  time.Now().UnixNano(),
		}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderAck{}, err
	}

	nonce := c.nonce()
	sig, err := c.auth.SignAction("order", nonce, map[string]any{
		"symbol": order.Symbol,
		"side":   order.Side.String(),
	})
	if err != nil {
		return types.OrderAck{}, types.WrapError(types.ErrAuthentication, "sign order action", err)
	}

	qty := decimal.NewFromFloat(order.Quantity).String()
	var priceStr *string
	if order.Price != nil {
		s := decimal.NewFromFloat(*order.Price).String()
		priceStr = &s
	}

	payload := orderWirePayload{
		Symbol:      order.Symbol,
		Side:        order.Side.String(),
		OrderType:   orderTypeWire(order.OrderType),
		Price:       priceStr,
		Quantity:    qty,
		ReduceOnly:  order.ReduceOnly,
		TimeInForce: tifWire(order.TimeInForce),
		Nonce:       nonce,
		Signature:   sig,
	}

	var ack types.OrderAck
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).SetResult(&ack).Post("/exchange/order")
	if err != nil {
		return types.OrderAck{}, types.WrapError(types.ErrVenue, "send order", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderAck{}, types.NewError(types.ErrOrderRejected,
			fmt.Sprintf("order rejected: status %d: %s", resp.StatusCode(), resp.String()))
	}
	return ack, nil
}

func (c *restClient) cancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		return nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).Delete("/exchange/order/" + orderID)
	if err != nil {
		return types.WrapError(types.ErrVenue, "cancel order", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.NewError(types.ErrVenue, fmt.Sprintf("cancel order: status %d", resp.StatusCode()))
	}
	return nil
}

func (c *restClient) cancelAll(ctx context.Context, symbol types.Symbol) error {
	if c.dryRun {
		return nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("symbol", symbol).Delete("/exchange/orders")
	if err != nil {
		return types.WrapError(types.ErrVenue, "cancel all", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.NewError(types.ErrVenue, fmt.Sprintf("cancel all: status %d", resp.StatusCode()))
	}
	return nil
}

func (c *restClient) getOrder(ctx context.Context, orderID string) (types.OrderAck, error) {
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderAck{}, err
	}
	var ack types.OrderAck
	resp, err := c.http.R().SetContext(ctx).SetResult(&ack).Get("/exchange/order/" + orderID)
	if err != nil {
		return types.OrderAck{}, types.WrapError(types.ErrVenue, "get order", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderAck{}, types.NewError(types.ErrNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	return ack, nil
}

func (c *restClient) balances(ctx context.Context) (map[string]types.Balance, error) {
	if err := c.rl.Account.Wait(ctx); err != nil {
		return nil, err
	}
	var out map[string]types.Balance
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/info/balances")
	if err != nil {
		return nil, types.WrapError(types.ErrVenue, "balances", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewError(types.ErrVenue, fmt.Sprintf("balances: status %d", resp.StatusCode()))
	}
	return out, nil
}

func (c *restClient) positions(ctx context.Context) ([]types.Position, error) {
	if err := c.rl.Account.Wait(ctx); err != nil {
		return nil, err
	}
	var out []types.Position
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/info/positions")
	if err != nil {
		return nil, types.WrapError(types.ErrVenue, "positions", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewError(types.ErrVenue, fmt.Sprintf("positions: status %d", resp.StatusCode()))
	}
	return out, nil
}

func (c *restClient) feeTier(ctx context.Context) (types.FeeTier, error) {
	if err := c.rl.Account.Wait(ctx); err != nil {
		return types.FeeTier{}, err
	}
	var out types.FeeTier
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/info/fee-tier")
	if err != nil {
		return types.FeeTier{}, types.WrapError(types.ErrVenue, "fee tier", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.FeeTier{}, types.NewError(types.ErrVenue, fmt.Sprintf("fee tier: status %d", resp.StatusCode()))
	}
	return out, nil
}

func (c *restClient) leverage(ctx context.Context) (float64, error) {
	if err := c.rl.Account.Wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Leverage float64 `json:"leverage"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/info/leverage")
	if err != nil {
		return 0, types.WrapError(types.ErrVenue, "leverage", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, types.NewError(types.ErrVenue, fmt.Sprintf("leverage: status %d", resp.StatusCode()))
	}
	return out.Leverage, nil
}

func (c *restClient) listSymbols(ctx context.Context) ([]types.Symbol, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	var out []types.Symbol
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/info/symbols")
	if err != nil {
		return nil, types.WrapError(types.ErrVenue, "list symbols", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, types.NewError(types.ErrVenue, fmt.Sprintf("list symbols: status %d", resp.StatusCode()))
	}
	return out, nil
}

func (c *restClient) searchSymbols(ctx context.Context, prefix string) ([]types.Symbol, error) {
	all, err := c.listSymbols(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Symbol
	for _, s := range all {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *restClient) fundingRate(ctx context.Context, symbol types.Symbol) (float64, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		FundingRateBps float64 `json:"funding_rate_bps"`
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("symbol", symbol).SetResult(&out).Get("/info/funding")
	if err != nil {
		return 0, types.WrapError(types.ErrVenue, "funding rate", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, types.NewError(types.ErrNotFound, fmt.Sprintf("no funding rate for %s", symbol))
	}
	return out.FundingRateBps, nil
}

func (c *restClient) openInterest(ctx context.Context, symbol types.Symbol) (float64, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		OpenInterest float64 `json:"open_interest"`
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("symbol", symbol).SetResult(&out).Get("/info/open-interest")
	if err != nil {
		return 0, types.WrapError(types.ErrVenue, "open interest", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, types.NewError(types.ErrNotFound, fmt.Sprintf("no open interest for %s", symbol))
	}
	return out.OpenInterest, nil
}

func (c *restClient) volume24h(ctx context.Context, symbol types.Symbol) (float64, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return 0, err
	}
	var out struct {
		Volume24h float64 `json:"volume_24h"`
	}
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("symbol", symbol).SetResult(&out).Get("/info/volume")
	if err != nil {
		return 0, types.WrapError(types.ErrVenue, "volume", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, types.NewError(types.ErrNotFound, fmt.Sprintf("no volume for %s", symbol))
	}
	return out.Volume24h, nil
}

func orderTypeWire(t types.OrderType) string {
	switch t {
	case types.OrderMarket:
		return "market"
	case types.OrderPostOnly:
		return "post_only"
	case types.OrderIOC:
		return "ioc"
	case types.OrderFOK:
		return "fok"
	default:
		return "limit"
	}
}

func tifWire(t types.TimeInForce) string {
	switch t {
	case types.TIFIOC:
		return "ioc"
	case types.TIFFOK:
		return "fok"
	case types.TIFGTX:
		return "gtx"
	default:
		return "gtc"
	}
}
