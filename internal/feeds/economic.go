package feeds

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bhtaylor94/apex/internal/pkg/apperrors"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/go-resty/resty/v2"
)

const (
	fredBaseURL = "https://api.stlouisfed.org/fred"

	// Effective federal funds rate series.
	fredSeriesFedFunds = "DFF"

	econCacheTTL = 15 * time.Minute
)

// Observation is one data point of a FRED series.
type Observation struct {
	Date  string
	Value float64
}

// FedWatch approximates CME-FedWatch-style probabilities for the next rate
// decision.
type FedWatch struct {
	CurrentRateLower float64
	CurrentRateUpper float64
	// Outcome -> probability, e.g. {"hold": 0.65, "cut_25bp": 0.30, "hike_25bp": 0.05}
	Probabilities map[string]float64
}

// EconomicFeed serves consensus-style estimates for economic data markets
// from FRED, with a small in-memory cache to stay well inside FRED's usage
// limits.
type EconomicFeed struct {
	rest   *resty.Client
	apiKey string

	mu    sync.Mutex
	cache map[string]cachedSeries
}

type cachedSeries struct {
	observations []Observation
	fetchedAt    time.Time
}

func NewEconomicFeed(fredAPIKey string) *EconomicFeed {
	client := resty.New().
		SetBaseURL(fredBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return &EconomicFeed{
		rest:   client,
		apiKey: fredAPIKey,
		cache:  make(map[string]cachedSeries),
	}
}

type fredObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// GetSeries fetches the most recent observations of a FRED series, newest
// first. Results are cached briefly.
func (f *EconomicFeed) GetSeries(ctx context.Context, seriesID string, limit int) ([]Observation, error) {
	f.mu.Lock()
	if cached, ok := f.cache[seriesID]; ok && time.Since(cached.fetchedAt) < econCacheTTL {
		obs := cached.observations
		f.mu.Unlock()
		return obs, nil
	}
	f.mu.Unlock()

	if f.apiKey == "" {
		return nil, apperrors.New(apperrors.ErrInvalidRequest, "FRED api key not configured", nil)
	}
	if limit <= 0 {
		limit = 10
	}

	var out fredObservationsResponse
	resp, err := f.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"series_id":  seriesID,
			"api_key":    f.apiKey,
			"file_type":  "json",
			"sort_order": "desc",
			"limit":      strconv.Itoa(limit),
		}).
		SetResult(&out).
		Get("/series/observations")
	if err != nil {
		return nil, apperrors.NewNetwork("fred series fetch", err)
	}
	if resp.IsError() {
		return nil, apperrors.NewAPIError(resp.StatusCode(), "fred series fetch", resp.String())
	}

	observations := make([]Observation, 0, len(out.Observations))
	for _, o := range out.Observations {
		// FRED reports missing values as ".".
		v, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			continue
		}
		observations = append(observations, Observation{Date: o.Date, Value: v})
	}

	f.mu.Lock()
	f.cache[seriesID] = cachedSeries{observations: observations, fetchedAt: time.Now()}
	f.mu.Unlock()
	return observations, nil
}

// FedRateEstimate derives the current target range from the effective fed
// funds rate and applies base-rate probabilities for the next decision.
// Without premium data the hold outcome dominates; history says the Fed
// surprises rarely.
func (f *EconomicFeed) FedRateEstimate(ctx context.Context) (FedWatch, error) {
	watch := FedWatch{
		Probabilities: map[string]float64{
			"hold":      0.65,
			"cut_25bp":  0.30,
			"hike_25bp": 0.05,
		},
	}

	observations, err := f.GetSeries(ctx, fredSeriesFedFunds, 5)
	if err != nil {
		logger.Warn("fed funds rate fetch failed, using defaults", "error", err)
		return watch, nil
	}
	if len(observations) == 0 {
		return watch, nil
	}

	// Round the effective rate down to the nearest quarter point to get the
	// lower bound of the target range.
	effective := observations[0].Value
	lower := float64(int(effective/0.25)) * 0.25
	watch.CurrentRateLower = lower
	watch.CurrentRateUpper = lower + 0.25
	return watch, nil
}

// Indicator value ranges used for the uniform fallback estimate when no
// consensus distribution is available.
var indicatorRanges = map[string][2]float64{
	"CPI":   {-0.5, 1.0},
	"JOBS":  {-200, 500},
	"GDP":   {-2.0, 5.0},
	"SP500": {-3.0, 3.0},
}

// BracketProbability estimates the chance an indicator lands inside
// [low, high] using a uniform distribution over the indicator's typical
// range. Deliberately crude; it only has to beat badly mispriced brackets.
func (f *EconomicFeed) BracketProbability(indicator string, low, high float64) float64 {
	bounds, ok := indicatorRanges[indicator]
	if !ok {
		bounds = [2]float64{-10, 10}
	}
	width := bounds[1] - bounds[0]
	if width <= 0 {
		return 0.5
	}

	effectiveLow := low
	if effectiveLow < bounds[0] {
		effectiveLow = bounds[0]
	}
	effectiveHigh := high
	if effectiveHigh > bounds[1] {
		effectiveHigh = bounds[1]
	}
	if effectiveHigh <= effectiveLow {
		return 0.01
	}
	return (effectiveHigh - effectiveLow) / width
}
