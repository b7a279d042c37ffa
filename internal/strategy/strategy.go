package strategy

import (
	"context"
	"math"
	"time"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/bhtaylor94/apex/internal/pkg/metrics"
)

// TradeSignal is a strategy's recommendation for one market.
type TradeSignal struct {
	Ticker               string
	Side                 exchange.OrderSide
	Action               exchange.OrderAction
	Confidence           float64 // [0, 1]
	EstimatedProbability float64 // our model's estimate, [0, 1]
	MarketProbability    float64 // market-implied, [0, 1]
	ExpectedValue        float64 // dollars per contract
	Strategy             string
	Reasoning            string
	SuggestedPrice       int // cents; 0 means derive from market probability
	CreatedAt            time.Time
}

// Edge is the absolute gap between our estimate and the market's.
func (s *TradeSignal) Edge() float64 {
	return math.Abs(s.EstimatedProbability - s.MarketProbability)
}

// MarketLister is the slice of the exchange client a scan needs.
type MarketLister interface {
	GetAllMarketsForSeries(ctx context.Context, seriesTicker, status string) ([]exchange.Market, error)
}

// Strategy finds candidate markets and turns them into trade signals.
// Analyze returns (nil, nil) when a market offers no opportunity.
type Strategy interface {
	Name() string
	Scan(ctx context.Context) ([]exchange.Market, error)
	Analyze(ctx context.Context, market exchange.Market) (*TradeSignal, error)
}

// Run executes one scan/analyze pass. A scan failure aborts the strategy;
// a single market's analysis failure is logged and skipped so the rest of
// the scan still produces signals.
func Run(ctx context.Context, s Strategy) ([]TradeSignal, error) {
	markets, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("scan complete", "strategy", s.Name(), "candidates", len(markets))

	var signals []TradeSignal
	for _, market := range markets {
		sig, err := s.Analyze(ctx, market)
		if err != nil {
			logger.Error("analysis failed", "strategy", s.Name(), "ticker", market.Ticker, "error", err)
			continue
		}
		if sig == nil {
			continue
		}
		signals = append(signals, *sig)
		metrics.SignalsTotal.WithLabelValues(s.Name()).Inc()
		logger.Info("signal generated",
			"strategy", s.Name(), "ticker", sig.Ticker, "side", sig.Side,
			"action", sig.Action, "ev", sig.ExpectedValue, "confidence", sig.Confidence)
	}
	return signals, nil
}

// ExpectedValueCents is the expected value of one binary contract in cents:
// probability * payout - cost, with the payout fixed at $1.00.
func ExpectedValueCents(probability float64, costCents int) float64 {
	return probability*100 - float64(costCents)
}
