package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Economic EconomicConfig `mapstructure:"economic"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Log      LogConfig      `mapstructure:"log"`
}

type ExchangeConfig struct {
	// "demo" or "prod"
	Env string `mapstructure:"env"`

	APIKeyID       string `mapstructure:"api_key_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	// PEM-encoded key material, used when no path is configured
	PrivateKeyPEM string `mapstructure:"private_key_pem"`

	// Requests per second per operation class (exchange basic tier: 20/10)
	ReadRate  float64 `mapstructure:"read_rate"`
	WriteRate float64 `mapstructure:"write_rate"`

	StreamEnabled bool `mapstructure:"stream_enabled"`
}

type RiskConfig struct {
	MaxDailyLoss            float64 `mapstructure:"max_daily_loss"`             // dollars
	MaxPositionSize         int     `mapstructure:"max_position_size"`          // contracts
	MaxTradeCost            float64 `mapstructure:"max_trade_cost"`             // dollars
	MaxPortfolioExposurePct float64 `mapstructure:"max_portfolio_exposure_pct"` // e.g. 20 = 20%
	KellyFraction           float64 `mapstructure:"kelly_fraction"`             // (0, 1], e.g. 0.5 = half Kelly
}

type TradingConfig struct {
	Categories          []string `mapstructure:"categories"` // "weather", "economic"
	DryRun              bool     `mapstructure:"dry_run"`
	ScanOnly            bool     `mapstructure:"scan_only"`
	ScanIntervalSeconds int      `mapstructure:"scan_interval_seconds"`
	MinConfidence       float64  `mapstructure:"min_confidence"`
	MinExpectedValue    float64  `mapstructure:"min_expected_value"` // dollars per contract
	MinMarketVolume     int      `mapstructure:"min_market_volume"`
	MaxHoursToClose     float64  `mapstructure:"max_hours_to_close"`
	StartHourUTC        int      `mapstructure:"start_hour_utc"`
	EndHourUTC          int      `mapstructure:"end_hour_utc"`
}

type WeatherConfig struct {
	Series []string `mapstructure:"series"`
}

type EconomicConfig struct {
	Series     []string `mapstructure:"series"`
	FredAPIKey string   `mapstructure:"fred_api_key"`
}

type OpsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        string `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var apiURLs = map[string]string{
	"demo": "https://demo-api.kalshi.co",
	"prod": "https://api.elections.kalshi.com",
}

var wsURLs = map[string]string{
	"demo": "wss://demo-api.kalshi.co/trade-api/ws/v2",
	"prod": "wss://api.elections.kalshi.com/trade-api/ws/v2",
}

// BaseURL returns the REST host for the configured environment, without the
// versioned API prefix.
func (e ExchangeConfig) BaseURL() string {
	if u, ok := apiURLs[e.Env]; ok {
		return u
	}
	return apiURLs["demo"]
}

func (e ExchangeConfig) StreamURL() string {
	if u, ok := wsURLs[e.Env]; ok {
		return u
	}
	return wsURLs["demo"]
}

func (e ExchangeConfig) IsProduction() bool {
	return e.Env == "prod"
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. APEX_EXCHANGE_API_KEY_ID
	viper.SetEnvPrefix("apex")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("exchange.env", "demo")
	viper.SetDefault("exchange.read_rate", 20.0)
	viper.SetDefault("exchange.write_rate", 10.0)
	viper.SetDefault("exchange.stream_enabled", false)

	viper.SetDefault("risk.max_daily_loss", 50.0)
	viper.SetDefault("risk.max_position_size", 100)
	viper.SetDefault("risk.max_trade_cost", 25.0)
	viper.SetDefault("risk.max_portfolio_exposure_pct", 20.0)
	viper.SetDefault("risk.kelly_fraction", 0.5)

	viper.SetDefault("trading.categories", []string{"weather", "economic"})
	viper.SetDefault("trading.dry_run", true)
	viper.SetDefault("trading.scan_only", false)
	viper.SetDefault("trading.scan_interval_seconds", 60)
	viper.SetDefault("trading.min_confidence", 0.55)
	viper.SetDefault("trading.min_expected_value", 0.05)
	viper.SetDefault("trading.min_market_volume", 50)
	viper.SetDefault("trading.max_hours_to_close", 48)
	viper.SetDefault("trading.start_hour_utc", 10)
	viper.SetDefault("trading.end_hour_utc", 23)

	viper.SetDefault("weather.series", []string{"KXHIGHNY", "KXHIGHCHI", "KXHIGHMIA", "KXHIGHAUS"})
	viper.SetDefault("economic.series", []string{"KXCPI", "KXJOBS", "KXFED", "KXGDP", "KXSP500"})

	viper.SetDefault("ops.enabled", true)
	viper.SetDefault("ops.port", "8080")
	viper.SetDefault("ops.metrics_path", "/metrics")

	viper.SetDefault("log.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
