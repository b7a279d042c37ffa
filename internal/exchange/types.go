package exchange

import (
	"time"
)

type OrderSide string

const (
	SideYes OrderSide = "yes"
	SideNo  OrderSide = "no"
)

type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Time-in-force values accepted by the exchange.
const (
	TIFGoodTillCanceled  = "gtc"
	TIFImmediateOrCancel = "ioc"
	TIFFillOrKill        = "fill_or_kill"
)

// Status is the exchange-wide trading state.
type Status struct {
	ExchangeActive bool `json:"exchange_active"`
	TradingActive  bool `json:"trading_active"`
}

// Market is a snapshot of one binary outcome. All prices are integer cents
// in [0, 100].
type Market struct {
	Ticker         string     `json:"ticker"`
	EventTicker    string     `json:"event_ticker"`
	Title          string     `json:"title"`
	Subtitle       string     `json:"subtitle"`
	Status         string     `json:"status"`
	OpenTime       *time.Time `json:"open_time,omitempty"`
	CloseTime      *time.Time `json:"close_time,omitempty"`
	ExpirationTime *time.Time `json:"expiration_time,omitempty"`
	YesBid         int        `json:"yes_bid"`
	YesAsk         int        `json:"yes_ask"`
	NoBid          int        `json:"no_bid"`
	NoAsk          int        `json:"no_ask"`
	LastPrice      int        `json:"last_price"`
	Volume         int        `json:"volume"`
	Volume24H      int        `json:"volume_24h"`
	OpenInterest   int        `json:"open_interest"`
	Result         string     `json:"result"`
}

// YesMid returns the mid-market YES price in cents, falling back to the
// last trade when the book is empty.
func (m *Market) YesMid() float64 {
	if m.YesBid > 0 && m.YesAsk > 0 {
		return float64(m.YesBid+m.YesAsk) / 2
	}
	return float64(m.LastPrice)
}

// ImpliedProbability returns the market-implied probability of the YES
// outcome in [0, 1].
func (m *Market) ImpliedProbability() float64 {
	mid := m.YesMid()
	if mid <= 0 {
		return 0
	}
	return mid / 100.0
}

// HoursUntilClose returns hours until the market closes, or +Inf when no
// close time is known.
func (m *Market) HoursUntilClose(now time.Time) float64 {
	if m.CloseTime == nil {
		return inf
	}
	h := m.CloseTime.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

const inf = 1e18

// Event groups the markets for one real-world outcome set.
type Event struct {
	EventTicker  string   `json:"event_ticker"`
	SeriesTicker string   `json:"series_ticker"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Status       string   `json:"status"`
	Markets      []Market `json:"markets"`
}

// Series describes a recurring market family (settlement sources etc).
type Series struct {
	Ticker    string `json:"ticker"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Frequency string `json:"frequency"`
}

// OrderRequest is an order to submit. Exactly one of YesPrice/NoPrice is
// set, matching Side.
type OrderRequest struct {
	Ticker        string      `json:"ticker"`
	Side          OrderSide   `json:"side"`
	Action        OrderAction `json:"action"`
	Count         int         `json:"count"`
	Type          OrderType   `json:"type"`
	YesPrice      *int        `json:"yes_price,omitempty"` // cents, (0, 100)
	NoPrice       *int        `json:"no_price,omitempty"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	TimeInForce   string      `json:"time_in_force,omitempty"`
	BuyMaxCost    *int        `json:"buy_max_cost,omitempty"`
	PostOnly      bool        `json:"post_only,omitempty"`
}

// Price returns whichever price field is set, in cents.
func (o *OrderRequest) Price() int {
	if o.YesPrice != nil {
		return *o.YesPrice
	}
	if o.NoPrice != nil {
		return *o.NoPrice
	}
	return 0
}

// Order is the exchange's view of a submitted order.
type Order struct {
	OrderID       string      `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Ticker        string      `json:"ticker"`
	Side          OrderSide   `json:"side"`
	Action        OrderAction `json:"action"`
	Count         int         `json:"count"`
	YesPrice      int         `json:"yes_price"`
	NoPrice       int         `json:"no_price"`
	Status        string      `json:"status"`
	CreatedTime   *time.Time  `json:"created_time,omitempty"`
}

// Position is held exposure in one market, in integer cents.
type Position struct {
	Ticker             string `json:"ticker"`
	EventTicker        string `json:"event_ticker"`
	MarketExposure     int64  `json:"market_exposure"`
	RealizedPnL        int64  `json:"realized_pnl"`
	RestingOrdersCount int    `json:"resting_orders_count"`
	TotalTraded        int64  `json:"total_traded"`
}

// Fill is one executed trade.
type Fill struct {
	TradeID     string      `json:"trade_id"`
	OrderID     string      `json:"order_id"`
	Ticker      string      `json:"ticker"`
	Side        OrderSide   `json:"side"`
	Action      OrderAction `json:"action"`
	Count       int         `json:"count"`
	YesPrice    int         `json:"yes_price"`
	NoPrice     int         `json:"no_price"`
	IsTaker     bool        `json:"is_taker"`
	CreatedTime *time.Time  `json:"created_time,omitempty"`
}

// Trade is one public market trade.
type Trade struct {
	TradeID     string     `json:"trade_id"`
	Ticker      string     `json:"ticker"`
	Count       int        `json:"count"`
	YesPrice    int        `json:"yes_price"`
	NoPrice     int        `json:"no_price"`
	TakerSide   OrderSide  `json:"taker_side"`
	CreatedTime *time.Time `json:"created_time,omitempty"`
}

// PriceLevel is one orderbook level: [price_cents, contracts].
type PriceLevel [2]int

// Orderbook holds resting liquidity for both sides of a market.
type Orderbook struct {
	Yes []PriceLevel `json:"yes"`
	No  []PriceLevel `json:"no"`
}
