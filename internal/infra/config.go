package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Secrets may live in the
// file for local use but environment variables always override them.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Symbols  []string `yaml:"symbols"`
		Interval string   `yaml:"interval"`
		DryRun   bool     `yaml:"dry_run"`
		Testnet  bool     `yaml:"testnet"`
		FeeRate  float64  `yaml:"fee_rate"`
		Leverage int      `yaml:"leverage"`
	} `yaml:"trading"`

	Risk struct {
		RiskPerTrade     float64 `yaml:"risk_per_trade"`
		PositionSizeUSDT float64 `yaml:"position_size_usdt"`
	} `yaml:"risk"`

	API struct {
		Key    string `yaml:"key"`
		Secret string `yaml:"secret"`
		WSURL  string `yaml:"ws_url"`
	} `yaml:"api"`

	Engine struct {
		PollIntervalSec         int    `yaml:"poll_interval_sec"`
		DegradedPollIntervalSec int    `yaml:"degraded_poll_interval_sec"`
		EventBuffer             int    `yaml:"event_buffer"`
		DBPath                  string `yaml:"db_path"`
	} `yaml:"engine"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// LoadConfig reads and parses the config file, applies env overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Trading.Interval == "" {
		c.Trading.Interval = "5m"
	}
	if c.Trading.FeeRate == 0 {
		c.Trading.FeeRate = 0.0004
	}
	if c.Trading.Leverage == 0 {
		c.Trading.Leverage = 5
	}
	if c.API.WSURL == "" {
		c.API.WSURL = "wss://fstream.binance.com"
	}
	if c.Engine.PollIntervalSec == 0 {
		c.Engine.PollIntervalSec = 5
	}
	if c.Engine.DegradedPollIntervalSec == 0 {
		c.Engine.DegradedPollIntervalSec = 10
	}
	if c.Engine.DBPath == "" {
		c.Engine.DBPath = "trades.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol is required")
	}
	for _, s := range c.Trading.Symbols {
		if s == "" || s != strings.ToUpper(s) {
			return fmt.Errorf("symbols must be uppercase, got %q", s)
		}
	}
	if !strings.HasPrefix(c.API.WSURL, "ws://") && !strings.HasPrefix(c.API.WSURL, "wss://") {
		return fmt.Errorf("invalid ws url: %s", c.API.WSURL)
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 0.01 {
		return fmt.Errorf("fee rate out of range: %v", c.Trading.FeeRate)
	}
	if c.Trading.Leverage < 1 || c.Trading.Leverage > 125 {
		return fmt.Errorf("leverage out of range: %d", c.Trading.Leverage)
	}
	if c.Risk.RiskPerTrade < 0 || c.Risk.RiskPerTrade > 0.1 {
		return fmt.Errorf("risk per trade out of range: %v", c.Risk.RiskPerTrade)
	}
	if c.Risk.RiskPerTrade == 0 && c.Risk.PositionSizeUSDT <= 0 {
		return fmt.Errorf("either risk_per_trade or position_size_usdt must be set")
	}
	if !c.Trading.DryRun && (c.API.Key == "" || c.API.Secret == "") {
		return fmt.Errorf("live trading requires API credentials")
	}
	return nil
}

// overrideWithEnv lets environment variables take precedence over the file
// for credentials.
func overrideWithEnv(cfg *Config) {
	if cfg.API.Secret != "" {
		fmt.Println("WARNING: API secret found in config file; prefer FUTURE_API_KEY / FUTURE_API_SECRET env vars")
	}
	if key := os.Getenv("FUTURE_API_KEY"); key != "" {
		cfg.API.Key = key
	}
	if secret := os.Getenv("FUTURE_API_SECRET"); secret != "" {
		cfg.API.Secret = secret
	}
}
