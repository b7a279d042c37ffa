package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bhtaylor94/apex/internal/bot"
	"github.com/bhtaylor94/apex/internal/config"
	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/feeds"
	"github.com/bhtaylor94/apex/internal/ops"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
	"github.com/bhtaylor94/apex/internal/risk"
	"github.com/bhtaylor94/apex/internal/strategy"
	"github.com/bhtaylor94/apex/internal/stream"
	"github.com/shopspring/decimal"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	// 2. Credentials. Signing is mandatory; there is no unauthenticated
	// trading mode.
	var cred *exchange.Credential
	if cfg.Exchange.PrivateKeyPath != "" {
		cred, err = exchange.LoadCredential(cfg.Exchange.APIKeyID, cfg.Exchange.PrivateKeyPath)
	} else {
		cred, err = exchange.CredentialFromPEM(cfg.Exchange.APIKeyID, []byte(cfg.Exchange.PrivateKeyPEM))
	}
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	client := exchange.NewClient(exchange.ClientConfig{
		BaseURL:    cfg.Exchange.BaseURL(),
		Credential: cred,
		ReadRate:   cfg.Exchange.ReadRate,
		WriteRate:  cfg.Exchange.WriteRate,
	})

	// 3. Startup connection report
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status, err := client.GetExchangeStatus(ctx)
	if err != nil {
		log.Fatalf("Failed to reach exchange: %v", err)
	}
	balance, err := client.GetBalance(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch balance (check credentials): %v", err)
	}
	logger.Info("✅ Connected to exchange",
		"env", cfg.Exchange.Env,
		"exchange_active", status.ExchangeActive,
		"trading_active", status.TradingActive,
		"balance", balance)
	if cfg.Exchange.IsProduction() && !cfg.Trading.DryRun {
		logger.Warn("⚠️ LIVE TRADING with real money")
	}

	// 4. Risk manager, synced to existing exchange positions
	riskMgr := risk.NewManager(risk.Limits{
		MaxDailyLoss:            decimal.NewFromFloat(cfg.Risk.MaxDailyLoss),
		MaxPositionSize:         cfg.Risk.MaxPositionSize,
		MaxTradeCost:            decimal.NewFromFloat(cfg.Risk.MaxTradeCost),
		MaxPortfolioExposurePct: cfg.Risk.MaxPortfolioExposurePct,
		KellyFraction:           cfg.Risk.KellyFraction,
	})
	positions, err := client.GetAllPositions(ctx)
	if err != nil {
		logger.Warn("position sync failed, starting with empty exposure", "error", err)
	} else {
		for _, p := range positions {
			riskMgr.UpdatePosition(p.Ticker, decimal.New(p.MarketExposure, -2))
		}
		logger.Info("synced positions", "count", len(positions))
	}

	// 5. Quote stream (optional)
	var quoteStream *stream.TickerStream
	if cfg.Exchange.StreamEnabled {
		quoteStream = stream.NewTickerStream(cfg.Exchange.StreamURL(), cred)
		quoteStream.Start()
	}

	// 6. Strategies
	var strategies []strategy.Strategy
	for _, category := range cfg.Trading.Categories {
		switch category {
		case "weather":
			strategies = append(strategies, strategy.NewWeather(client, feeds.NewNWSClient(), strategy.WeatherOptions{
				Series:          cfg.Weather.Series,
				MaxHoursToClose: cfg.Trading.MaxHoursToClose,
				MinVolume:       cfg.Trading.MinMarketVolume,
			}))
		case "economic":
			strategies = append(strategies, strategy.NewEconomic(client, feeds.NewEconomicFeed(cfg.Economic.FredAPIKey), strategy.EconomicOptions{
				Series:          cfg.Economic.Series,
				MaxHoursToClose: cfg.Trading.MaxHoursToClose,
				MinVolume:       cfg.Trading.MinMarketVolume,
			}))
		default:
			logger.Warn("unknown strategy category", "category", category)
		}
	}
	if len(strategies) == 0 {
		log.Fatal("No strategies configured")
	}

	// 7. Ops server
	var opsServer *ops.Server
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(riskMgr, quoteStream, ops.Options{
			Port:        cfg.Ops.Port,
			MetricsPath: cfg.Ops.MetricsPath,
		})
		go opsServer.Start()
	}

	// 8. Trading loop
	orchestrator := bot.New(client, riskMgr, strategies, subscriberOrNil(quoteStream), bot.Options{
		ScanInterval:  time.Duration(cfg.Trading.ScanIntervalSeconds) * time.Second,
		MinConfidence: cfg.Trading.MinConfidence,
		MinEV:         cfg.Trading.MinExpectedValue,
		DryRun:        cfg.Trading.DryRun,
		ScanOnly:      cfg.Trading.ScanOnly,
		StartHourUTC:  cfg.Trading.StartHourUTC,
		EndHourUTC:    cfg.Trading.EndHourUTC,
	})

	logger.Info("🚀 apex started", "env", cfg.Exchange.Env, "dry_run", cfg.Trading.DryRun)
	_ = orchestrator.Run(ctx)

	// 9. Graceful shutdown
	logger.Info("🛑 Shutting down...")
	if quoteStream != nil {
		quoteStream.Stop()
	}
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown failed", "error", err)
		}
	}

	summary := riskMgr.DailySummary()
	logger.Info("final daily summary",
		"date", summary.Date,
		"pnl", summary.RealizedPnL,
		"trades", summary.TradesCount,
		"win_rate", summary.WinRate)
	logger.Info("Bot exiting")
}

// subscriberOrNil avoids handing the orchestrator a typed nil interface.
func subscriberOrNil(s *stream.TickerStream) bot.QuoteSubscriber {
	if s == nil {
		return nil
	}
	return s
}
