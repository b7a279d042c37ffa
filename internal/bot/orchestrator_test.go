package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/risk"
	"github.com/bhtaylor94/apex/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	status     *exchange.Status
	statusErr  error
	balance    decimal.Decimal
	balanceErr error
	orderErr   error

	orders []*exchange.OrderRequest
}

func (f *fakeAPI) GetExchangeStatus(ctx context.Context) (*exchange.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeAPI) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return f.balance, f.balanceErr
}

func (f *fakeAPI) CreateOrder(ctx context.Context, order *exchange.OrderRequest) (*exchange.Order, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, order)
	return &exchange.Order{OrderID: "ord-1", Ticker: order.Ticker}, nil
}

type fixedStrategy struct {
	name    string
	signals []strategy.TradeSignal
	err     error
}

func (s *fixedStrategy) Name() string { return s.name }

func (s *fixedStrategy) Scan(ctx context.Context) ([]exchange.Market, error) {
	if s.err != nil {
		return nil, s.err
	}
	markets := make([]exchange.Market, len(s.signals))
	for i, sig := range s.signals {
		markets[i] = exchange.Market{Ticker: sig.Ticker}
	}
	return markets, nil
}

func (s *fixedStrategy) Analyze(ctx context.Context, m exchange.Market) (*strategy.TradeSignal, error) {
	for i := range s.signals {
		if s.signals[i].Ticker == m.Ticker {
			return &s.signals[i], nil
		}
	}
	return nil, nil
}

type recordingSubscriber struct {
	tickers []string
}

func (r *recordingSubscriber) Subscribe(tickers []string) {
	r.tickers = append(r.tickers, tickers...)
}

func testRiskManager() *risk.Manager {
	return risk.NewManager(risk.Limits{
		MaxDailyLoss:            decimal.NewFromInt(50),
		MaxPositionSize:         100,
		MaxTradeCost:            decimal.NewFromInt(25),
		MaxPortfolioExposurePct: 20,
		KellyFraction:           0.5,
	})
}

func goodSignal(ticker string, ev float64) strategy.TradeSignal {
	return strategy.TradeSignal{
		Ticker:               ticker,
		Side:                 exchange.SideYes,
		Action:               exchange.ActionBuy,
		Confidence:           0.80,
		EstimatedProbability: 0.70,
		MarketProbability:    0.50,
		ExpectedValue:        ev,
		SuggestedPrice:       50,
		Strategy:             "test",
	}
}

func activeStatus() *exchange.Status {
	return &exchange.Status{ExchangeActive: true, TradingActive: true}
}

func defaultOpts() Options {
	return Options{MinConfidence: 0.55, MinEV: 0.05, EndHourUTC: 24}
}

func TestCycleExecutesApprovedSignal(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.Equal(t, 1, result.Signals)
	assert.Equal(t, 1, result.Executed)
	require.Len(t, api.orders, 1)
	assert.Equal(t, "T1", api.orders[0].Ticker)
	assert.True(t, api.orders[0].PostOnly)
}

func TestCycleInactiveExchangeSkips(t *testing.T) {
	api := &fakeAPI{status: &exchange.Status{ExchangeActive: false}}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.Zero(t, result.Signals)
	assert.Zero(t, result.Executed)
	assert.Empty(t, api.orders)
}

func TestCycleTradingHaltScansOnly(t *testing.T) {
	api := &fakeAPI{
		status:  &exchange.Status{ExchangeActive: true, TradingActive: false},
		balance: decimal.NewFromInt(1000),
	}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.True(t, result.ScanOnly)
	assert.Equal(t, 1, result.Signals)
	assert.Equal(t, 1, result.Executed) // counted as a would-be trade
	assert.Empty(t, api.orders)
}

func TestCycleBalanceFailureScansOnly(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balanceErr: errors.New("503")}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.True(t, result.ScanOnly)
	assert.Equal(t, 1, result.Signals)
	assert.Equal(t, 1, result.Executed)
	assert.Empty(t, api.orders)
}

func TestCycleStatusFailureScansOnly(t *testing.T) {
	api := &fakeAPI{statusErr: errors.New("timeout")}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.True(t, result.ScanOnly)
	assert.Equal(t, 1, result.Signals)
	assert.Equal(t, 1, result.Executed)
	assert.Empty(t, api.orders)
}

func TestCycleScanOnlyCountsWouldBeTrades(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{
		goodSignal("T1", 0.20),
		goodSignal("T2", 0.10),
	}}

	opts := defaultOpts()
	opts.ScanOnly = true
	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, opts)
	result := o.RunCycle(context.Background())

	// Every signal is a would-be trade; nothing touches the exchange.
	assert.Equal(t, 2, result.Executed)
	assert.Empty(t, api.orders)
}

func TestCycleOrdersBestEVFirst(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{
		goodSignal("LOW", 0.06),
		goodSignal("HIGH", 0.30),
		goodSignal("MID", 0.15),
	}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.Equal(t, 3, result.Signals)
	require.GreaterOrEqual(t, len(api.orders), 1)
	assert.Equal(t, "HIGH", api.orders[0].Ticker)
}

func TestCycleStrategyFailureIsolated(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	broken := &fixedStrategy{name: "broken", err: errors.New("feed down")}
	working := &fixedStrategy{name: "working", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	o := New(api, testRiskManager(), []strategy.Strategy{broken, working}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.Equal(t, 1, result.Signals)
	assert.Equal(t, 1, result.Executed)
}

func TestCycleRejectedSignalCounts(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	weak := goodSignal("T1", 0.20)
	weak.Confidence = 0.10
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{weak}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	assert.Equal(t, 1, result.Rejected)
	assert.Zero(t, result.Executed)
	assert.Empty(t, api.orders)
}

func TestCycleOrderFailureContinues(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000), orderErr: errors.New("rejected")}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{
		goodSignal("T1", 0.20),
		goodSignal("T2", 0.10),
	}}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, nil, defaultOpts())
	result := o.RunCycle(context.Background())

	// Both submissions fail but the cycle itself completes.
	assert.Equal(t, 2, result.Signals)
	assert.Zero(t, result.Executed)
}

func TestCycleDryRunPlacesNothing(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	opts := defaultOpts()
	opts.DryRun = true
	riskMgr := testRiskManager()
	o := New(api, riskMgr, []strategy.Strategy{strat}, nil, opts)
	result := o.RunCycle(context.Background())

	assert.Equal(t, 1, result.Executed)
	assert.Empty(t, api.orders)
	// Dry runs never touch the ledger.
	assert.Zero(t, riskMgr.DailySummary().TradesCount)
}

func TestCycleSubscribesSignalTickers(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{
		goodSignal("T1", 0.20),
		goodSignal("T2", 0.10),
	}}
	sub := &recordingSubscriber{}

	o := New(api, testRiskManager(), []strategy.Strategy{strat}, sub, defaultOpts())
	o.RunCycle(context.Background())

	assert.ElementsMatch(t, []string{"T1", "T2"}, sub.tickers)
}

func TestCycleRecordsExposureAfterFill(t *testing.T) {
	api := &fakeAPI{status: activeStatus(), balance: decimal.NewFromInt(1000)}
	strat := &fixedStrategy{name: "test", signals: []strategy.TradeSignal{goodSignal("T1", 0.20)}}

	riskMgr := testRiskManager()
	o := New(api, riskMgr, []strategy.Strategy{strat}, nil, defaultOpts())
	o.RunCycle(context.Background())

	s := riskMgr.DailySummary()
	assert.Equal(t, 1, s.TradesCount)
	// 50 contracts at 50 cents.
	assert.True(t, s.TotalExposure.Equal(decimal.NewFromInt(25)))
}

func TestWithinTradingHours(t *testing.T) {
	o := New(&fakeAPI{}, testRiskManager(), nil, nil, Options{StartHourUTC: 10, EndHourUTC: 23})

	cases := map[int]bool{9: false, 10: true, 15: true, 22: true, 23: false}
	for hour, want := range cases {
		h := hour
		o.now = func() time.Time {
			return time.Date(2026, 8, 31, h, 30, 0, 0, time.UTC)
		}
		assert.Equal(t, want, o.withinTradingHours(), "hour %d", hour)
	}
}

func TestZeroOptionsWindowAlwaysOpen(t *testing.T) {
	// An unset window must not mean "never trade".
	o := New(&fakeAPI{}, testRiskManager(), nil, nil, Options{})

	for _, hour := range []int{0, 12, 23} {
		h := hour
		o.now = func() time.Time {
			return time.Date(2026, 8, 31, h, 30, 0, 0, time.UTC)
		}
		assert.True(t, o.withinTradingHours(), "hour %d", hour)
	}
}
