package ops

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bhtaylor94/apex/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, *risk.Manager) {
	t.Helper()
	riskMgr := risk.NewManager(risk.Limits{
		MaxDailyLoss:            decimal.NewFromInt(50),
		MaxPositionSize:         100,
		MaxTradeCost:            decimal.NewFromInt(25),
		MaxPortfolioExposurePct: 20,
		KellyFraction:           0.5,
	})
	return NewServer(riskMgr, nil, Options{Port: "0"}), riskMgr
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSummaryEndpoint(t *testing.T) {
	s, riskMgr := testServer(t)
	riskMgr.RecordTrade("T1", decimal.NewFromInt(10), decimal.NewFromInt(-5))

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary risk.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TradesCount)
	assert.True(t, summary.RealizedPnL.Equal(decimal.NewFromInt(-5)))
	assert.Equal(t, 1, summary.OpenPositions)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQuotesEndpointWithoutStream(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quotes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}
