// Inspector is a read-only CLI for poking at the exchange with the bot's
// credentials: connection status, balance, positions and market listings.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bhtaylor94/apex/internal/config"
	"github.com/bhtaylor94/apex/internal/exchange"
	"github.com/bhtaylor94/apex/internal/pkg/logger"
)

func main() {
	series := flag.String("series", "", "list open markets for a series ticker")
	positions := flag.Bool("positions", false, "list open positions")
	orders := flag.Bool("orders", false, "list resting orders")
	flag.Parse()

	logger.Init("warn")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	status, err := client.GetExchangeStatus(ctx)
	if err != nil {
		log.Fatalf("Exchange unreachable: %v", err)
	}
	fmt.Printf("env:             %s\n", cfg.Exchange.Env)
	fmt.Printf("exchange_active: %v\n", status.ExchangeActive)
	fmt.Printf("trading_active:  %v\n", status.TradingActive)

	balance, err := client.GetBalance(ctx)
	if err != nil {
		log.Fatalf("Balance fetch failed (check credentials): %v", err)
	}
	fmt.Printf("balance:         $%s\n", balance.StringFixed(2))

	switch {
	case *series != "":
		markets, err := client.GetAllMarketsForSeries(ctx, *series, "open")
		if err != nil {
			log.Fatalf("Market listing failed: %v", err)
		}
		fmt.Printf("\n%d open markets in %s:\n", len(markets), *series)
		for _, m := range markets {
			fmt.Printf("  %-30s yes %2d/%2d  vol24h %6d  %s\n",
				m.Ticker, m.YesBid, m.YesAsk, m.Volume24H, m.Subtitle)
		}
	case *positions:
		open, err := client.GetAllPositions(ctx)
		if err != nil {
			log.Fatalf("Position listing failed: %v", err)
		}
		dump(open)
	case *orders:
		resting, err := client.GetOrders(ctx, "", "resting", 100)
		if err != nil {
			log.Fatalf("Order listing failed: %v", err)
		}
		dump(resting)
	}
}

func dump(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal(err)
	}
}
