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
	"github.com/bhtaylor94/apex/internal/pkg/logger"
)

// Typical NWS point-forecast error in °F; the bracket probability model is
// a Gaussian with this spread around our high estimate.
const forecastStdDev = 2.5

// Station maps a market series to the NWS station its markets settle on.
type Station struct {
	Series    string
	City      string
	StationID string
	Lat       float64
	Lon       float64
}

// DefaultStations covers the daily-high series this strategy trades.
// Settlement uses the listed station's Daily Climate Report.
var DefaultStations = []Station{
	{Series: "KXHIGHNY", City: "New York City", StationID: "KNYC", Lat: 40.7829, Lon: -73.9654},
	{Series: "KXHIGHCHI", City: "Chicago", StationID: "KMDW", Lat: 41.7868, Lon: -87.7522},
	{Series: "KXHIGHMIA", City: "Miami", StationID: "KMIA", Lat: 25.7959, Lon: -80.2870},
	{Series: "KXHIGHAUS", City: "Austin", StationID: "KAUS", Lat: 30.1945, Lon: -97.6699},
}

// HighTempEstimator produces a best estimate of today's high for a station.
type HighTempEstimator interface {
	EstimateHigh(ctx context.Context, station string, lat, lon float64) (float64, error)
}

// Weather trades daily high-temperature brackets: it compares an NWS-based
// temperature estimate against each bracket's market-implied probability
// and signals where the divergence is large enough to pay for.
type Weather struct {
	api       MarketLister
	estimator HighTempEstimator

	stations        []Station
	maxHoursToClose float64
	minVolume       int
}

type WeatherOptions struct {
	Series          []string
	MaxHoursToClose float64
	MinVolume       int
}

func NewWeather(api MarketLister, estimator HighTempEstimator, opts WeatherOptions) *Weather {
	stations := DefaultStations
	if len(opts.Series) > 0 {
		var filtered []Station
		for _, st := range DefaultStations {
			for _, s := range opts.Series {
				if st.Series == s {
					filtered = append(filtered, st)
					break
				}
			}
		}
		stations = filtered
	}
	maxHours := opts.MaxHoursToClose
	if maxHours <= 0 {
		maxHours = 48
	}
	return &Weather{
		api:             api,
		estimator:       estimator,
		stations:        stations,
		maxHoursToClose: maxHours,
		minVolume:       opts.MinVolume,
	}
}

func (w *Weather) Name() string { return "weather" }

// Scan returns open markets across all configured series inside the time
// horizon. A failing series is skipped so the others still scan.
func (w *Weather) Scan(ctx context.Context) ([]exchange.Market, error) {
	now := time.Now()
	var all []exchange.Market
	for _, st := range w.stations {
		markets, err := w.api.GetAllMarketsForSeries(ctx, st.Series, "open")
		if err != nil {
			logger.Error("series scan failed", "strategy", w.Name(), "series", st.Series, "error", err)
			continue
		}
		for _, m := range markets {
			if m.HoursUntilClose(now) > w.maxHoursToClose {
				continue
			}
			if m.Volume24H < w.minVolume {
				continue
			}
			all = append(all, m)
		}
	}
	return all, nil
}

func (w *Weather) Analyze(ctx context.Context, market exchange.Market) (*TradeSignal, error) {
	station, ok := w.stationFor(market)
	if !ok {
		return nil, nil
	}

	estimatedHigh, err := w.estimator.EstimateHigh(ctx, station.StationID, station.Lat, station.Lon)
	if err != nil {
		return nil, err
	}

	bracketLow, bracketHigh, ok := ParseTemperatureBracket(market.Subtitle)
	if !ok {
		logger.Debug("unparseable temperature bracket", "ticker", market.Ticker, "subtitle", market.Subtitle)
		return nil, nil
	}

	estProb := bracketProbability(estimatedHigh, bracketLow, bracketHigh)
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
	case edge > 0:
		// YES underpriced
		side = exchange.SideYes
		costCents = market.YesAsk
		if costCents <= 0 {
			costCents = int(marketProb * 100)
		}
		evCents = ExpectedValueCents(estProb, costCents)
	case edge < -0.05:
		// YES overpriced, take the other side
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
	timeConfidence := math.Min(1.0, 1.0-(hoursLeft/48.0)*0.3)
	confidence := math.Min(0.95, math.Abs(edge)*2+timeConfidence*0.3)

	if math.Abs(edge) < 0.03 || ev < 0.02 {
		return nil, nil
	}

	reasoning := fmt.Sprintf(
		"%s: est_high=%.1f°F, bracket=[%s, %s], est_prob=%.3f, mkt_prob=%.3f, edge=%+.3f, hours_left=%.1f",
		station.City, estimatedHigh, formatBound(bracketLow), formatBound(bracketHigh),
		estProb, marketProb, edge, hoursLeft)

	return &TradeSignal{
		Ticker:               market.Ticker,
		Side:                 side,
		Action:               exchange.ActionBuy,
		Confidence:           confidence,
		EstimatedProbability: estProb,
		MarketProbability:    marketProb,
		ExpectedValue:        ev,
		Strategy:             w.Name(),
		Reasoning:            reasoning,
		SuggestedPrice:       costCents,
		CreatedAt:            time.Now().UTC(),
	}, nil
}

func (w *Weather) stationFor(market exchange.Market) (Station, bool) {
	eventUpper := strings.ToUpper(market.EventTicker)
	titleLower := strings.ToLower(market.Title)
	for _, st := range w.stations {
		if strings.Contains(eventUpper, st.Series) ||
			strings.Contains(eventUpper, strings.TrimPrefix(st.Series, "KX")) {
			return st, true
		}
		if strings.Contains(titleLower, strings.ToLower(st.City)) {
			return st, true
		}
	}
	return Station{}, false
}

var (
	tempRangeRe = regexp.MustCompile(`(\d+)\s*°?\s*to\s*(\d+)\s*°?`)
	tempLessRe  = regexp.MustCompile(`[≤<]\s*(\d+)|(\d+)\s*°?\s*or\s*(?:less|below)|under\s*(\d+)`)
	tempMoreRe  = regexp.MustCompile(`[≥>]\s*(\d+)|(\d+)\s*°?\s*or\s*(?:more|above)|over\s*(\d+)`)
)

// ParseTemperatureBracket extracts the [low, high) temperature range a
// market pays on from its subtitle. Edge brackets are open-ended on one
// side ("49° or below", "56° or above"); range brackets like "51° to 52°"
// have an exclusive upper bound one degree past the printed top.
func ParseTemperatureBracket(subtitle string) (low, high float64, ok bool) {
	subtitle = strings.TrimSpace(subtitle)

	if m := tempRangeRe.FindStringSubmatch(subtitle); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		return lo, hi + 1, true
	}
	if m := tempLessRe.FindStringSubmatch(subtitle); m != nil {
		v, err := firstGroup(m)
		if err == nil {
			return math.Inf(-1), v + 1, true
		}
	}
	if m := tempMoreRe.FindStringSubmatch(subtitle); m != nil {
		v, err := firstGroup(m)
		if err == nil {
			return v, math.Inf(1), true
		}
	}
	return 0, 0, false
}

func firstGroup(match []string) (float64, error) {
	for _, g := range match[1:] {
		if g != "" {
			return strconv.ParseFloat(g, 64)
		}
	}
	return 0, strconv.ErrSyntax
}

// bracketProbability is the mass a Gaussian centered on estimate puts in
// [low, high).
func bracketProbability(estimate, low, high float64) float64 {
	switch {
	case math.IsInf(low, -1):
		return normalCDF(high, estimate, forecastStdDev)
	case math.IsInf(high, 1):
		return 1 - normalCDF(low, estimate, forecastStdDev)
	default:
		return normalCDF(high, estimate, forecastStdDev) - normalCDF(low, estimate, forecastStdDev)
	}
}

func normalCDF(x, mean, std float64) float64 {
	z := (x - mean) / std
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func formatBound(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if math.IsInf(v, 1) {
		return "+inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
