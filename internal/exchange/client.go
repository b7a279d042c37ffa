package exchange

import (
	"context"
	"net/url"
	"strconv"

	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxPageLimit = 1000

// GetExchangeStatus reports whether the exchange and trading are active.
func (c *Client) GetExchangeStatus(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.get(ctx, "/exchange/status", nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarketsParams filters a markets page request. Zero values are omitted.
type MarketsParams struct {
	Limit        int
	Cursor       string
	EventTicker  string
	SeriesTicker string
	Status       string
	MinCloseTS   int64
	MaxCloseTS   int64
}

func (p MarketsParams) values() url.Values {
	v := url.Values{}
	limit := p.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	if p.Cursor != "" {
		v.Set("cursor", p.Cursor)
	}
	if p.EventTicker != "" {
		v.Set("event_ticker", p.EventTicker)
	}
	if p.SeriesTicker != "" {
		v.Set("series_ticker", p.SeriesTicker)
	}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.MinCloseTS > 0 {
		v.Set("min_close_ts", strconv.FormatInt(p.MinCloseTS, 10))
	}
	if p.MaxCloseTS > 0 {
		v.Set("max_close_ts", strconv.FormatInt(p.MaxCloseTS, 10))
	}
	return v
}

// GetMarkets returns one page of markets plus the cursor for the next page.
// An empty cursor means the listing is complete.
func (c *Client) GetMarkets(ctx context.Context, p MarketsParams) ([]Market, string, error) {
	var out struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := c.get(ctx, "/markets", p.values(), false, &out); err != nil {
		return nil, "", err
	}
	return out.Markets, out.Cursor, nil
}

// GetAllMarketsForSeries walks the cursor until the server reports no more
// pages. An empty first page is a valid zero-result listing.
func (c *Client) GetAllMarketsForSeries(ctx context.Context, seriesTicker, status string) ([]Market, error) {
	var all []Market
	cursor := ""
	for {
		markets, next, err := c.GetMarkets(ctx, MarketsParams{
			Limit:        200,
			Cursor:       cursor,
			SeriesTicker: seriesTicker,
			Status:       status,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, markets...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	var out struct {
		Market Market `json:"market"`
	}
	if err := c.get(ctx, "/markets/"+ticker, nil, false, &out); err != nil {
		return nil, err
	}
	return &out.Market, nil
}

func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (*Orderbook, error) {
	v := url.Values{}
	if depth > 0 {
		v.Set("depth", strconv.Itoa(depth))
	}
	var out struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.get(ctx, "/markets/"+ticker+"/orderbook", v, false, &out); err != nil {
		return nil, err
	}
	return &out.Orderbook, nil
}

// GetTrades returns recent public trades, optionally filtered to a market.
func (c *Client) GetTrades(ctx context.Context, ticker string, limit int) ([]Trade, error) {
	v := url.Values{}
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	if ticker != "" {
		v.Set("ticker", ticker)
	}
	var out struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.get(ctx, "/markets/trades", v, false, &out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

// EventsParams filters an events page request.
type EventsParams struct {
	Limit             int
	Cursor            string
	SeriesTicker      string
	Status            string
	WithNestedMarkets bool
}

func (c *Client) GetEvents(ctx context.Context, p EventsParams) ([]Event, string, error) {
	v := url.Values{}
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	if p.Cursor != "" {
		v.Set("cursor", p.Cursor)
	}
	if p.SeriesTicker != "" {
		v.Set("series_ticker", p.SeriesTicker)
	}
	if p.Status != "" {
		v.Set("status", p.Status)
	}
	if p.WithNestedMarkets {
		v.Set("with_nested_markets", "true")
	}
	var out struct {
		Events []Event `json:"events"`
		Cursor string  `json:"cursor"`
	}
	if err := c.get(ctx, "/events", v, false, &out); err != nil {
		return nil, "", err
	}
	return out.Events, out.Cursor, nil
}

func (c *Client) GetEvent(ctx context.Context, eventTicker string) (*Event, error) {
	v := url.Values{}
	v.Set("with_nested_markets", "true")
	var out struct {
		Event Event `json:"event"`
	}
	if err := c.get(ctx, "/events/"+eventTicker, v, false, &out); err != nil {
		return nil, err
	}
	return &out.Event, nil
}

func (c *Client) GetSeries(ctx context.Context, seriesTicker string) (*Series, error) {
	var out struct {
		Series Series `json:"series"`
	}
	if err := c.get(ctx, "/series/"+seriesTicker, nil, false, &out); err != nil {
		return nil, err
	}
	return &out.Series, nil
}

// GetBalance returns the account balance in dollars. The wire value is
// integer cents; this is one of the explicit cents-to-dollars boundaries.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Balance int64 `json:"balance"`
	}
	if err := c.get(ctx, "/portfolio/balance", nil, true, &out); err != nil {
		return decimal.Zero, err
	}
	return decimal.New(out.Balance, -2), nil
}

// PositionsParams filters a positions page request.
type PositionsParams struct {
	Limit            int
	Cursor           string
	EventTicker      string
	SettlementStatus string
}

func (c *Client) GetPositions(ctx context.Context, p PositionsParams) ([]Position, string, error) {
	v := url.Values{}
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	if p.Cursor != "" {
		v.Set("cursor", p.Cursor)
	}
	if p.EventTicker != "" {
		v.Set("event_ticker", p.EventTicker)
	}
	if p.SettlementStatus != "" {
		v.Set("settlement_status", p.SettlementStatus)
	}
	var out struct {
		MarketPositions []Position `json:"market_positions"`
		Cursor          string     `json:"cursor"`
	}
	if err := c.get(ctx, "/portfolio/positions", v, true, &out); err != nil {
		return nil, "", err
	}
	return out.MarketPositions, out.Cursor, nil
}

// GetAllPositions fetches every unsettled position across pages.
func (c *Client) GetAllPositions(ctx context.Context) ([]Position, error) {
	var all []Position
	cursor := ""
	for {
		positions, next, err := c.GetPositions(ctx, PositionsParams{
			Limit:            200,
			Cursor:           cursor,
			SettlementStatus: "unsettled",
		})
		if err != nil {
			return nil, err
		}
		all = append(all, positions...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// CreateOrder submits an order. A client order id is generated when the
// caller has not set one, making resubmission after an ambiguous failure
// idempotent on the exchange side.
func (c *Client) CreateOrder(ctx context.Context, order *OrderRequest) (*Order, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}
	logger.Info("submitting order",
		"ticker", order.Ticker, "side", order.Side, "action", order.Action,
		"count", order.Count, "price_cents", order.Price(), "client_order_id", order.ClientOrderID)

	var out struct {
		Order Order `json:"order"`
	}
	if err := c.post(ctx, "/portfolio/orders", order, &out); err != nil {
		return nil, err
	}
	return &out.Order, nil
}

// CancelOrder cancels a resting order by its exchange id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.delete(ctx, "/portfolio/orders/"+orderID, nil)
}

func (c *Client) GetOrders(ctx context.Context, ticker, status string, limit int) ([]Order, error) {
	v := url.Values{}
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	if ticker != "" {
		v.Set("ticker", ticker)
	}
	if status != "" {
		v.Set("status", status)
	}
	var out struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, "/portfolio/orders", v, true, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

func (c *Client) GetFills(ctx context.Context, ticker string, limit int) ([]Fill, error) {
	v := url.Values{}
	if limit <= 0 {
		limit = 100
	}
	v.Set("limit", strconv.Itoa(limit))
	if ticker != "" {
		v.Set("ticker", ticker)
	}
	var out struct {
		Fills []Fill `json:"fills"`
	}
	if err := c.get(ctx, "/portfolio/fills", v, true, &out); err != nil {
		return nil, err
	}
	return out.Fills, nil
}
