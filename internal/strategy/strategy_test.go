package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStrategy struct {
	name       string
	markets    []exchange.Market
	scanErr    error
	analyze    map[string]*TradeSignal
	analyzeErr map[string]error
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Scan(ctx context.Context) ([]exchange.Market, error) {
	return s.markets, s.scanErr
}

func (s *scriptedStrategy) Analyze(ctx context.Context, m exchange.Market) (*TradeSignal, error) {
	if err := s.analyzeErr[m.Ticker]; err != nil {
		return nil, err
	}
	return s.analyze[m.Ticker], nil
}

func TestRunScanErrorAborts(t *testing.T) {
	s := &scriptedStrategy{name: "test", scanErr: errors.New("api down")}

	signals, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Nil(t, signals)
}

func TestRunAnalyzeFailureSkipsMarket(t *testing.T) {
	s := &scriptedStrategy{
		name: "test",
		markets: []exchange.Market{
			{Ticker: "A"},
			{Ticker: "B"},
			{Ticker: "C"},
		},
		analyze: map[string]*TradeSignal{
			"A": {Ticker: "A", ExpectedValue: 0.10},
			"C": {Ticker: "C", ExpectedValue: 0.20},
		},
		analyzeErr: map[string]error{"B": errors.New("feed unavailable")},
	}

	// B fails, A and C still produce signals.
	signals, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "A", signals[0].Ticker)
	assert.Equal(t, "C", signals[1].Ticker)
}

func TestRunNilSignalSkipped(t *testing.T) {
	s := &scriptedStrategy{
		name:    "test",
		markets: []exchange.Market{{Ticker: "A"}},
	}

	signals, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestExpectedValueCents(t *testing.T) {
	// 70% at 50 cents: 0.7*100 - 50 = 20 cents of EV.
	assert.InDelta(t, 20, ExpectedValueCents(0.70, 50), 1e-9)
	assert.InDelta(t, -10, ExpectedValueCents(0.40, 50), 1e-9)
	assert.Zero(t, ExpectedValueCents(0.50, 50))
}
