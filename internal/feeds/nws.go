package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/bhtaylor94/apex/internal/pkg/apperrors"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/go-resty/resty/v2"
)

// Weather markets settle on the NWS Daily Climate Report, so the National
// Weather Service is the authoritative source, not consumer weather apps.
const (
	nwsBaseURL   = "https://api.weather.gov"
	nwsUserAgent = "apex-trading-bot/1.0 (ops@example.com)"
)

// Forecast is the assembled weather picture for one station.
type Forecast struct {
	Station      string
	ForecastHigh float64 // Fahrenheit; 0 if unknown
	ForecastLow  float64
	CurrentTemp  float64
	HourlyTemps  []float64
	Conditions   string
	HasHigh      bool
	HasCurrent   bool
}

// NWSClient fetches forecasts and observations from the National Weather
// Service API.
type NWSClient struct {
	rest *resty.Client
}

func NewNWSClient() *NWSClient {
	client := resty.New().
		SetBaseURL(nwsBaseURL).
		SetHeader("User-Agent", nwsUserAgent).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)
	return &NWSClient{rest: client}
}

type nwsPointResponse struct {
	Properties struct {
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type nwsForecastResponse struct {
	Properties struct {
		Periods []struct {
			IsDaytime   bool    `json:"isDaytime"`
			Temperature float64 `json:"temperature"`
		} `json:"periods"`
	} `json:"properties"`
}

type nwsObservationResponse struct {
	Properties struct {
		Temperature struct {
			Value *float64 `json:"value"` // Celsius
		} `json:"temperature"`
		TextDescription string `json:"textDescription"`
	} `json:"properties"`
}

// GetForecast combines the point forecast, hourly forecast and latest
// station observation for a location.
func (c *NWSClient) GetForecast(ctx context.Context, station string, lat, lon float64) (*Forecast, error) {
	forecast := &Forecast{Station: station}

	// Latest observation first: the current temperature floors our high
	// estimate even when forecast endpoints fail.
	var obs nwsObservationResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&obs).
		Get(fmt.Sprintf("/stations/%s/observations/latest", station))
	if err == nil && resp.IsSuccess() {
		if obs.Properties.Temperature.Value != nil {
			forecast.CurrentTemp = celsiusToFahrenheit(*obs.Properties.Temperature.Value)
			forecast.HasCurrent = true
		}
		forecast.Conditions = obs.Properties.TextDescription
	} else {
		logger.Warn("nws observation fetch failed", "station", station, "error", err)
	}

	var point nwsPointResponse
	resp, err = c.rest.R().
		SetContext(ctx).
		SetResult(&point).
		Get(fmt.Sprintf("/points/%.4f,%.4f", lat, lon))
	if err != nil {
		return forecast, apperrors.NewNetwork("nws points lookup", err)
	}
	if resp.IsError() {
		return forecast, apperrors.NewAPIError(resp.StatusCode(), "nws points lookup", resp.String())
	}

	var daily nwsForecastResponse
	resp, err = c.rest.R().SetContext(ctx).SetResult(&daily).Get(point.Properties.Forecast)
	if err == nil && resp.IsSuccess() {
		// First two periods are today and tonight.
		for i, period := range daily.Properties.Periods {
			if i >= 2 {
				break
			}
			if period.IsDaytime {
				forecast.ForecastHigh = period.Temperature
				forecast.HasHigh = true
			} else {
				forecast.ForecastLow = period.Temperature
			}
		}
	}

	var hourly nwsForecastResponse
	resp, err = c.rest.R().SetContext(ctx).SetResult(&hourly).Get(point.Properties.ForecastHourly)
	if err == nil && resp.IsSuccess() {
		for i, period := range hourly.Properties.Periods {
			if i >= 24 {
				break
			}
			forecast.HourlyTemps = append(forecast.HourlyTemps, period.Temperature)
		}
	}

	return forecast, nil
}

// EstimateHigh returns the best estimate of today's high temperature for a
// station: the max of the forecast high, the current observation and the
// hourly trajectory. If the current temperature already exceeds the
// forecast, the day's high is at least that.
func (c *NWSClient) EstimateHigh(ctx context.Context, station string, lat, lon float64) (float64, error) {
	forecast, err := c.GetForecast(ctx, station, lat, lon)
	if err != nil && !forecast.HasHigh && !forecast.HasCurrent && len(forecast.HourlyTemps) == 0 {
		return 0, err
	}

	var estimates []float64
	if forecast.HasHigh {
		estimates = append(estimates, forecast.ForecastHigh)
	}
	if forecast.HasCurrent {
		estimates = append(estimates, forecast.CurrentTemp)
	}
	if len(forecast.HourlyTemps) > 0 {
		maxHourly := forecast.HourlyTemps[0]
		for _, t := range forecast.HourlyTemps[1:] {
			if t > maxHourly {
				maxHourly = t
			}
		}
		estimates = append(estimates, maxHourly)
	}
	if len(estimates) == 0 {
		return 0, apperrors.New(apperrors.ErrStrategy, "no temperature data for "+station, nil)
	}

	best := estimates[0]
	for _, e := range estimates[1:] {
		if e > best {
			best = e
		}
	}
	return best, nil
}

func celsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}
