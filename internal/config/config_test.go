package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Exchange.Env)
	assert.Equal(t, 20.0, cfg.Exchange.ReadRate)
	assert.Equal(t, 10.0, cfg.Exchange.WriteRate)

	assert.Equal(t, 50.0, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, 100, cfg.Risk.MaxPositionSize)
	assert.Equal(t, 25.0, cfg.Risk.MaxTradeCost)
	assert.Equal(t, 20.0, cfg.Risk.MaxPortfolioExposurePct)
	assert.Equal(t, 0.5, cfg.Risk.KellyFraction)

	// Defaults start conservative: dry run on, demo environment.
	assert.True(t, cfg.Trading.DryRun)
	assert.Equal(t, 0.55, cfg.Trading.MinConfidence)
	assert.Equal(t, 0.05, cfg.Trading.MinExpectedValue)
	assert.Equal(t, 60, cfg.Trading.ScanIntervalSeconds)
}

func TestEnvironmentURLs(t *testing.T) {
	demo := ExchangeConfig{Env: "demo"}
	assert.Equal(t, "https://demo-api.kalshi.co", demo.BaseURL())
	assert.False(t, demo.IsProduction())

	prod := ExchangeConfig{Env: "prod"}
	assert.Equal(t, "https://api.elections.kalshi.com", prod.BaseURL())
	assert.Contains(t, prod.StreamURL(), "wss://")
	assert.True(t, prod.IsProduction())

	// Unknown environments never silently point at production.
	unknown := ExchangeConfig{Env: "staging"}
	assert.Equal(t, demo.BaseURL(), unknown.BaseURL())
}
