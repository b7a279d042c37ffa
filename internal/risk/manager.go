package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/bhtaylor94/apex/internal/pkg/metrics"
	"github.com/bhtaylor94/apex/internal/strategy"
	"github.com/shopspring/decimal"
)

// Binary contracts always pay out $1.00; the Kelly odds below assume it.
var contractPayout = decimal.NewFromInt(1)

// Limits is the immutable risk configuration for the process lifetime.
type Limits struct {
	MaxDailyLoss            decimal.Decimal // dollars
	MaxPositionSize         int             // contracts
	MaxTradeCost            decimal.Decimal // dollars
	MaxPortfolioExposurePct float64         // e.g. 20 = 20%
	KellyFraction           float64         // (0, 1]
}

// DailyPnL tracks realized results for one UTC calendar day.
type DailyPnL struct {
	Date        string
	RealizedPnL decimal.Decimal
	TradesCount int
	Wins        int
	Losses      int
}

func (d DailyPnL) WinRate() float64 {
	if d.TradesCount == 0 {
		return 0
	}
	return float64(d.Wins) / float64(d.TradesCount)
}

// Summary is a snapshot of today's trading activity.
type Summary struct {
	Date                     string          `json:"date"`
	RealizedPnL              decimal.Decimal `json:"realized_pnl"`
	TradesCount              int             `json:"trades_count"`
	WinRate                  float64         `json:"win_rate"`
	TotalExposure            decimal.Decimal `json:"total_exposure"`
	OpenPositions            int             `json:"open_positions"`
	RemainingDailyLossBudget decimal.Decimal `json:"remaining_daily_loss_budget"`
}

// Manager converts trade signals into bounded orders and tracks daily P&L
// and per-ticker exposure. It owns that state exclusively; everything else
// reads it through the Manager's methods. The day rolls over lazily on
// first access after the UTC date changes; open exposure survives the roll.
type Manager struct {
	limits Limits

	mu       sync.Mutex
	day      DailyPnL
	exposure map[string]decimal.Decimal // ticker -> dollars at risk

	now func() time.Time
}

func NewManager(limits Limits) *Manager {
	m := &Manager{
		limits:   limits,
		exposure: make(map[string]decimal.Decimal),
		now:      time.Now,
	}
	m.day = DailyPnL{Date: m.today()}
	return m
}

func (m *Manager) today() string {
	return m.now().UTC().Format("2006-01-02")
}

// rollDayLocked resets the daily counters when the UTC date has changed.
// Callers must hold m.mu.
func (m *Manager) rollDayLocked() {
	today := m.today()
	if m.day.Date == today {
		return
	}
	logger.Info("new trading day",
		"previous_date", m.day.Date,
		"realized_pnl", m.day.RealizedPnL,
		"trades", m.day.TradesCount,
		"win_rate", m.day.WinRate())
	m.day = DailyPnL{Date: today}
}

func (m *Manager) totalExposureLocked() decimal.Decimal {
	total := decimal.Zero
	for _, v := range m.exposure {
		total = total.Add(v)
	}
	return total
}

// KellyFraction returns the fraction of bankroll to stake for win
// probability p and payout odds b, scaled by the configured Kelly
// multiplier. Degenerate inputs (certainty, zero or negative odds) size to
// zero rather than erroring.
func (m *Manager) KellyFraction(p, b float64) float64 {
	if p <= 0 || p >= 1 || b <= 0 {
		return 0
	}
	q := 1 - p
	kelly := (p*b - q) / b
	if kelly < 0 {
		kelly = 0
	}
	return kelly * m.limits.KellyFraction
}

// SizePosition returns the contract count for a signal: the minimum of the
// Kelly-implied size and four hard caps (position size, per-trade cost,
// exposure headroom, remaining daily-loss budget), floored at zero.
func (m *Manager) SizePosition(sig *strategy.TradeSignal, balance decimal.Decimal, costPerContractCents int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if costPerContractCents <= 0 || balance.Sign() <= 0 {
		return 0
	}
	cost := decimal.New(int64(costPerContractCents), -2)

	profitIfWin := contractPayout.Sub(cost)
	if profitIfWin.Sign() <= 0 {
		return 0
	}
	odds, _ := profitIfWin.Div(cost).Float64()

	kellyFrac := m.KellyFraction(sig.EstimatedProbability, odds)
	kellyAmount := balance.Mul(decimal.NewFromFloat(kellyFrac))
	fromKelly := int(kellyAmount.Div(cost).IntPart())

	fromPosition := m.limits.MaxPositionSize

	fromCost := int(m.limits.MaxTradeCost.Div(cost).IntPart())

	exposure := m.totalExposureLocked()
	maxExposure := balance.Mul(decimal.NewFromFloat(m.limits.MaxPortfolioExposurePct / 100))
	headroom := maxExposure.Sub(exposure)
	if headroom.Sign() < 0 {
		headroom = decimal.Zero
	}
	fromExposure := int(headroom.Div(cost).IntPart())

	lossUsed := decimal.Zero
	if m.day.RealizedPnL.Sign() < 0 {
		lossUsed = m.day.RealizedPnL.Neg()
	}
	remainingDaily := m.limits.MaxDailyLoss.Sub(lossUsed)
	if remainingDaily.Sign() < 0 {
		remainingDaily = decimal.Zero
	}
	fromDaily := int(remainingDaily.Div(cost).IntPart())

	size := min(fromKelly, fromPosition, fromCost, fromExposure, fromDaily)
	if size < 0 {
		size = 0
	}

	logger.Debug("position sizing",
		"ticker", sig.Ticker, "kelly", fromKelly, "position_limit", fromPosition,
		"cost_limit", fromCost, "exposure_limit", fromExposure, "daily_limit", fromDaily,
		"size", size)
	return size
}

// ValidateTrade decides whether a signal may trade at all. Rejection is a
// normal control-flow outcome, not an error; the reason string is meant for
// operators. Validation is independent from sizing: an approved trade can
// still size to zero contracts.
func (m *Manager) ValidateTrade(sig *strategy.TradeSignal, balance decimal.Decimal, minConfidence, minEV float64) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if m.day.RealizedPnL.LessThanOrEqual(m.limits.MaxDailyLoss.Neg()) {
		metrics.RiskRejects.WithLabelValues("daily_loss").Inc()
		return false, fmt.Sprintf("Daily loss limit reached ($%s)", m.day.RealizedPnL.StringFixed(2))
	}
	if sig.Confidence < minConfidence {
		metrics.RiskRejects.WithLabelValues("confidence").Inc()
		return false, fmt.Sprintf("Confidence too low (%.2f < %.2f)", sig.Confidence, minConfidence)
	}
	if sig.ExpectedValue < minEV {
		metrics.RiskRejects.WithLabelValues("expected_value").Inc()
		return false, fmt.Sprintf("Expected value too low (%.4f < %.2f)", sig.ExpectedValue, minEV)
	}
	if balance.Sign() <= 0 {
		metrics.RiskRejects.WithLabelValues("balance").Inc()
		return false, "Insufficient balance"
	}
	exposure := m.totalExposureLocked()
	maxExposure := balance.Mul(decimal.NewFromFloat(m.limits.MaxPortfolioExposurePct / 100))
	if exposure.GreaterThanOrEqual(maxExposure) {
		metrics.RiskRejects.WithLabelValues("exposure").Inc()
		return false, fmt.Sprintf("Portfolio exposure limit reached ($%s >= $%s)",
			exposure.StringFixed(2), maxExposure.StringFixed(2))
	}
	return true, "Trade approved"
}

// BuildOrder turns an approved signal into a post-only GTC limit order, or
// nil when the derived price is outside (0, 100)¢ or the sized count is
// zero. Exactly one of the yes/no price fields is set, matching the side.
func (m *Manager) BuildOrder(sig *strategy.TradeSignal, balance decimal.Decimal) *exchange.OrderRequest {
	var costCents int
	if sig.Side == exchange.SideYes {
		costCents = sig.SuggestedPrice
		if costCents == 0 {
			costCents = int(sig.MarketProbability * 100)
		}
	} else {
		costCents = sig.SuggestedPrice
		if costCents == 0 {
			costCents = int((1 - sig.MarketProbability) * 100)
		}
	}
	if costCents <= 0 || costCents >= 100 {
		return nil
	}

	count := m.SizePosition(sig, balance, costCents)
	if count <= 0 {
		return nil
	}

	order := &exchange.OrderRequest{
		Ticker:      sig.Ticker,
		Side:        sig.Side,
		Action:      sig.Action,
		Count:       count,
		Type:        exchange.OrderTypeLimit,
		TimeInForce: exchange.TIFGoodTillCanceled,
		// Never cross the spread; taker fees eat the edge.
		PostOnly: true,
	}
	if sig.Side == exchange.SideYes {
		order.YesPrice = &costCents
	} else {
		order.NoPrice = &costCents
	}
	return order
}

// RecordTrade accounts for one completed trade: cost is added to the
// ticker's exposure and pnl to the daily ledger.
func (m *Manager) RecordTrade(ticker string, cost, pnl decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	m.day.TradesCount++
	m.day.RealizedPnL = m.day.RealizedPnL.Add(pnl)
	switch pnl.Sign() {
	case 1:
		m.day.Wins++
	case -1:
		m.day.Losses++
	}

	prev, ok := m.exposure[ticker]
	if !ok {
		prev = decimal.Zero
	}
	m.exposure[ticker] = prev.Add(cost)
}

// UpdatePosition overwrites the tracked exposure for a ticker, dropping the
// entry entirely when nothing remains at risk. Used to sync from exchange
// positions at startup.
func (m *Manager) UpdatePosition(ticker string, exposure decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exposure.Sign() <= 0 {
		delete(m.exposure, ticker)
		return
	}
	m.exposure[ticker] = exposure
}

// DailySummary reports today's activity. The remaining daily-loss budget is
// maxDailyLoss + realizedPnL and goes negative once the limit is breached.
func (m *Manager) DailySummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	return Summary{
		Date:                     m.day.Date,
		RealizedPnL:              m.day.RealizedPnL,
		TradesCount:              m.day.TradesCount,
		WinRate:                  m.day.WinRate(),
		TotalExposure:            m.totalExposureLocked(),
		OpenPositions:            len(m.exposure),
		RemainingDailyLossBudget: m.limits.MaxDailyLoss.Add(m.day.RealizedPnL),
	}
}
