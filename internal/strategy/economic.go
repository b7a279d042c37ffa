package strategy

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/feeds"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
)

// EconomicDataFeed is the slice of the FRED-backed feed this strategy needs.
type EconomicDataFeed interface {
	FedRateEstimate(ctx context.Context) (feeds.FedWatch, error)
	BracketProbability(indicator string, low, high float64) float64
}

// Economic trades scheduled-release markets (CPI, payrolls, Fed decisions,
// GDP, index closes) by comparing a data-derived probability against the
// market's implied one.
type Economic struct {
	api  MarketLister
	feed EconomicDataFeed

	series          []string
	maxHoursToClose float64
	minVolume       int
}

type EconomicOptions struct {
	Series          []string
	MaxHoursToClose float64
	MinVolume       int
}

func NewEconomic(api MarketLister, feed EconomicDataFeed, opts EconomicOptions) *Economic {
	series := opts.Series
	if len(series) == 0 {
		series = []string{"KXCPI", "KXJOBS", "KXFED", "KXGDP", "KXSP500"}
	}
	maxHours := opts.MaxHoursToClose
	if maxHours <= 0 {
		maxHours = 72
	}
	return &Economic{
		api:             api,
		feed:            feed,
		series:          series,
		maxHoursToClose: maxHours,
		minVolume:       opts.MinVolume,
	}
}

func (e *Economic) Name() string { return "economic" }

func (e *Economic) Scan(ctx context.Context) ([]exchange.Market, error) {
	now := time.Now()
	var all []exchange.Market
	for _, s := range e.series {
		markets, err := e.api.GetAllMarketsForSeries(ctx, s, "open")
		if err != nil {
			logger.Error("series scan failed", "strategy", e.Name(), "series", s, "error", err)
			continue
		}
		for _, m := range markets {
			if m.HoursUntilClose(now) > e.maxHoursToClose {
				continue
			}
			if m.Volume24H < e.minVolume {
				continue
			}
			all = append(all, m)
		}
	}
	return all, nil
}

func (e *Economic) Analyze(ctx context.Context, market exchange.Market) (*TradeSignal, error) {
	indicator := IdentifyIndicator(market)
	if indicator == "" {
		return nil, nil
	}

	var estProb float64
	if indicator == "FED" {
		p, err := e.fedProbability(ctx, market)
		if err != nil {
			return nil, err
		}
		if p < 0 {
			return nil, nil
		}
		estProb = p
	} else {
		low, high, ok := ParseNumericBracket(market.Subtitle)
		if !ok {
			logger.Debug("unparseable bracket", "ticker", market.Ticker, "subtitle", market.Subtitle)
			return nil, nil
		}
		estProb = e.feed.BracketProbability(indicator, low, high)
	}
	estProb = clamp(estProb, 0.01, 0.99)

	marketProb := market.ImpliedProbability()
	if marketProb <= 0 {
		marketProb = 0.01
	}
	edge := estProb - marketProb

	var (
		side      exchange.OrderSide
		costCents int
		evCents   float64
	)
	switch {
	case edge > 0.04:
		side = exchange.SideYes
		costCents = market.YesAsk
		if costCents <= 0 {
			costCents = int(marketProb * 100)
		}
		evCents = ExpectedValueCents(estProb, costCents)
	case edge < -0.04:
		side = exchange.SideNo
		costCents = market.NoAsk
		if costCents <= 0 {
			costCents = int((1 - marketProb) * 100)
		}
		estProb = 1 - estProb
		evCents = ExpectedValueCents(estProb, costCents)
	default:
		return nil, nil
	}
	ev := evCents / 100.0

	hoursLeft := market.HoursUntilClose(time.Now())
	timeFactor := clamp(1.0-hoursLeft/72.0, 0.3, 1.0)
	confidence := math.Min(0.90, math.Abs(edge)*1.5+timeFactor*0.2)

	if math.Abs(edge) < 0.03 || ev < 0.01 {
		return nil, nil
	}

	reasoning := fmt.Sprintf(
		"%s: est_prob=%.3f, mkt_prob=%.3f, edge=%+.3f, hours_left=%.1f",
		indicator, estProb, marketProb, edge, hoursLeft)

	return &TradeSignal{
		Ticker:               market.Ticker,
		Side:                 side,
		Action:               exchange.ActionBuy,
		Confidence:           confidence,
		EstimatedProbability: estProb,
		MarketProbability:    marketProb,
		ExpectedValue:        ev,
		Strategy:             e.Name(),
		Reasoning:            reasoning,
		SuggestedPrice:       costCents,
		CreatedAt:            time.Now().UTC(),
	}, nil
}

// fedProbability maps a Fed decision market onto the FedWatch outcome
// probabilities. Returns -1 when the market doesn't match a known outcome.
func (e *Economic) fedProbability(ctx context.Context, market exchange.Market) (float64, error) {
	watch, err := e.feed.FedRateEstimate(ctx)
	if err != nil {
		return 0, err
	}

	text := strings.ToLower(market.Title + " " + market.Subtitle)
	switch {
	case strings.Contains(text, "cut"):
		return watch.Probabilities["cut_25bp"], nil
	case strings.Contains(text, "hike") || strings.Contains(text, "raise") || strings.Contains(text, "increase"):
		return watch.Probabilities["hike_25bp"], nil
	case strings.Contains(text, "hold") || strings.Contains(text, "unchanged") || strings.Contains(text, "maintain") || strings.Contains(text, "no change"):
		return watch.Probabilities["hold"], nil
	}
	return -1, nil
}

// IdentifyIndicator classifies a market by the economic release it settles
// on, or "" when unrecognized.
func IdentifyIndicator(market exchange.Market) string {
	text := strings.ToUpper(market.EventTicker + " " + market.Ticker + " " + market.Title)
	switch {
	case strings.Contains(text, "CPI") || strings.Contains(text, "INFLATION"):
		return "CPI"
	case strings.Contains(text, "JOBS") || strings.Contains(text, "PAYROLL") || strings.Contains(text, "NONFARM"):
		return "JOBS"
	case strings.Contains(text, "FED") || strings.Contains(text, "FOMC") || strings.Contains(text, "RATE DECISION"):
		return "FED"
	case strings.Contains(text, "GDP"):
		return "GDP"
	case strings.Contains(text, "SP500") || strings.Contains(text, "S&P"):
		return "SP500"
	}
	return ""
}

var numberRe = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// ParseNumericBracket extracts the numeric range a market pays on from its
// subtitle. Two numbers mean a closed range; one number with a ≥/≤ style
// qualifier means an open-ended bracket.
func ParseNumericBracket(subtitle string) (low, high float64, ok bool) {
	matches := numberRe.FindAllString(subtitle, -1)

	switch len(matches) {
	case 0:
		return 0, 0, false
	case 1:
		v, err := strconv.ParseFloat(matches[0], 64)
		if err != nil {
			return 0, 0, false
		}
		lower := strings.ToLower(subtitle)
		switch {
		case strings.ContainsAny(subtitle, "≥>") || strings.Contains(lower, "or more") || strings.Contains(lower, "or above") || strings.Contains(lower, "above"):
			return v, math.Inf(1), true
		case strings.ContainsAny(subtitle, "≤<") || strings.Contains(lower, "or less") || strings.Contains(lower, "or below") || strings.Contains(lower, "below"):
			return math.Inf(-1), v, true
		}
		return 0, 0, false
	default:
		lo, err1 := strconv.ParseFloat(matches[0], 64)
		hi, err2 := strconv.ParseFloat(matches[1], 64)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		if hi < lo {
			lo, hi = hi, lo
		}
		return lo, hi, true
	}
}
