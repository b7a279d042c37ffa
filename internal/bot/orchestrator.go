// Package bot runs the scan/validate/execute trading loop.
package bot

import (
	"context"
	"sort"
	"time"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/bhtaylor94/apex/internal/pkg/metrics"
	"github.com/bhtaylor94/apex/internal/risk"
	"github.com/bhtaylor94/apex/internal/strategy"
	"github.com/shopspring/decimal"
)

// ExchangeAPI is the slice of the exchange client the orchestrator uses.
type ExchangeAPI interface {
	GetExchangeStatus(ctx context.Context) (*exchange.Status, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	CreateOrder(ctx context.Context, order *exchange.OrderRequest) (*exchange.Order, error)
}

// QuoteSubscriber receives the tickers each cycle produced signals for, so
// the stream can start watching them.
type QuoteSubscriber interface {
	Subscribe(tickers []string)
}

// Options are the orchestrator's trading parameters.
type Options struct {
	ScanInterval  time.Duration
	MinConfidence float64
	MinEV         float64 // dollars per contract
	DryRun        bool
	ScanOnly      bool
	StartHourUTC  int
	EndHourUTC    int
}

// CycleResult summarizes one pass over all strategies.
type CycleResult struct {
	Signals  int
	Executed int
	Rejected int
	ScanOnly bool
}

// Orchestrator drives the trading loop: exchange status gate, balance
// refresh, strategy scans, risk validation and order execution, in that
// order every cycle. Trading halts degrade a cycle to scan-only instead of
// failing it.
type Orchestrator struct {
	api        ExchangeAPI
	riskMgr    *risk.Manager
	strategies []strategy.Strategy
	stream     QuoteSubscriber // optional
	opts       Options

	now func() time.Time
}

func New(api ExchangeAPI, riskMgr *risk.Manager, strategies []strategy.Strategy, stream QuoteSubscriber, opts Options) *Orchestrator {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = time.Minute
	}
	// A zero window would mean "never trade"; treat unset as always open.
	if opts.EndHourUTC <= 0 {
		opts.EndHourUTC = 24
	}
	return &Orchestrator{
		api:        api,
		riskMgr:    riskMgr,
		strategies: strategies,
		stream:     stream,
		opts:       opts,
		now:        time.Now,
	}
}

// Run executes cycles until the context is canceled. Outside the configured
// trading hours it idles without touching the exchange.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Info("orchestrator started",
		"interval", o.opts.ScanInterval,
		"dry_run", o.opts.DryRun,
		"scan_only", o.opts.ScanOnly,
		"strategies", len(o.strategies))

	for {
		if o.withinTradingHours() {
			result := o.RunCycle(ctx)
			logger.Info("cycle complete",
				"signals", result.Signals,
				"executed", result.Executed,
				"rejected", result.Rejected,
				"scan_only", result.ScanOnly)
		} else {
			logger.Debug("outside trading hours", "hour_utc", o.now().UTC().Hour())
		}

		select {
		case <-ctx.Done():
			logger.Info("orchestrator stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-time.After(o.opts.ScanInterval):
		}
	}
}

func (o *Orchestrator) withinTradingHours() bool {
	hour := o.now().UTC().Hour()
	return hour >= o.opts.StartHourUTC && hour < o.opts.EndHourUTC
}

// RunCycle performs one full pass. The exchange status gate runs first: an
// inactive exchange skips everything, a trading halt or an unreadable
// balance degrades to scan-only so signals are still produced and logged.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{ScanOnly: o.opts.ScanOnly}

	status, err := o.api.GetExchangeStatus(ctx)
	if err != nil {
		logger.Error("exchange status check failed", "error", err)
		result.ScanOnly = true
	} else if !status.ExchangeActive {
		logger.Warn("exchange inactive, skipping cycle")
		metrics.CyclesTotal.WithLabelValues("skipped").Inc()
		return result
	} else if !status.TradingActive {
		logger.Warn("trading halted, scanning only")
		result.ScanOnly = true
	}

	balance := decimal.Zero
	if !result.ScanOnly {
		balance, err = o.api.GetBalance(ctx)
		if err != nil {
			logger.Error("balance fetch failed, scanning only", "error", err)
			result.ScanOnly = true
		}
	}

	var signals []strategy.TradeSignal
	for _, s := range o.strategies {
		sigs, err := strategy.Run(ctx, s)
		if err != nil {
			logger.Error("strategy failed", "strategy", s.Name(), "error", err)
			continue
		}
		signals = append(signals, sigs...)
	}
	result.Signals = len(signals)

	// Best expected value first; capital is finite.
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].ExpectedValue > signals[j].ExpectedValue
	})

	if o.stream != nil && len(signals) > 0 {
		tickers := make([]string, 0, len(signals))
		for _, sig := range signals {
			tickers = append(tickers, sig.Ticker)
		}
		o.stream.Subscribe(tickers)
	}

	for i := range signals {
		sig := &signals[i]

		if result.ScanOnly {
			logger.Info("signal (scan-only)",
				"ticker", sig.Ticker, "side", sig.Side, "ev", sig.ExpectedValue,
				"confidence", sig.Confidence, "reasoning", sig.Reasoning)
			// Counts as a would-be trade so cycle totals stay comparable
			// across modes.
			result.Executed++
			continue
		}

		ok, reason := o.riskMgr.ValidateTrade(sig, balance, o.opts.MinConfidence, o.opts.MinEV)
		if !ok {
			logger.Info("signal rejected", "ticker", sig.Ticker, "reason", reason)
			result.Rejected++
			continue
		}

		order := o.riskMgr.BuildOrder(sig, balance)
		if order == nil {
			logger.Info("signal sized to zero", "ticker", sig.Ticker)
			result.Rejected++
			continue
		}

		if o.opts.DryRun {
			logger.Info("dry run: would place order",
				"ticker", order.Ticker, "side", order.Side, "count", order.Count,
				"price_cents", order.Price())
			result.Executed++
			continue
		}

		placed, err := o.api.CreateOrder(ctx, order)
		if err != nil {
			logger.Error("order failed", "ticker", order.Ticker, "error", err)
			metrics.OrdersTotal.WithLabelValues("failed", string(order.Side)).Inc()
			continue
		}
		result.Executed++
		metrics.OrdersTotal.WithLabelValues("placed", string(order.Side)).Inc()

		cost := decimal.New(int64(order.Price()*order.Count), -2)
		o.riskMgr.RecordTrade(order.Ticker, cost, decimal.Zero)
		logger.Info("order placed",
			"order_id", placed.OrderID, "ticker", order.Ticker, "side", order.Side,
			"count", order.Count, "price_cents", order.Price(), "cost", cost)

		if refreshed, err := o.api.GetBalance(ctx); err == nil {
			balance = refreshed
		}
	}

	if result.ScanOnly {
		metrics.CyclesTotal.WithLabelValues("scan_only").Inc()
	} else {
		metrics.CyclesTotal.WithLabelValues("traded").Inc()
	}
	return result
}
