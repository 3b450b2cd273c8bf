// Package config provides configuration management for the trading application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"bracket-trader/internal/security"
	"bracket-trader/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig   `mapstructure:"trading"`
	Risk        RiskConfig      `mapstructure:"risk"`
	Execution   ExecutionConfig `mapstructure:"execution"`
	Strategy    StrategyConfig  `mapstructure:"strategy"`
	Session     SessionConfig   `mapstructure:"session"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Store       StoreConfig     `mapstructure:"store"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode         string   `mapstructure:"mode"`     // "live", "paper"
	Exchange     string   `mapstructure:"exchange"` // NSE, BSE
	Product      string   `mapstructure:"product"`  // MIS, CNC, NRML
	Tickers      []string `mapstructure:"tickers"`
	PaperCapital float64  `mapstructure:"paper_capital"`
}

// RiskConfig holds per-trade risk parameters.
type RiskConfig struct {
	RiskFraction float64 `mapstructure:"risk_fraction"`
	RewardToRisk float64 `mapstructure:"reward_to_risk"`
}

// ExecutionConfig controls order submission.
type ExecutionConfig struct {
	RetryCount       int           `mapstructure:"retry_count"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	RestrictionCodes []string      `mapstructure:"restriction_codes"`
	RestrictionHints []string      `mapstructure:"restriction_hints"`
	EntryOrderType   string        `mapstructure:"entry_order_type"` // LIMIT, MARKET
	PacingRate       float64       `mapstructure:"pacing_rate"`      // calls per second
	PacingBurst      int           `mapstructure:"pacing_burst"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// StrategyConfig holds the opening range breakout parameters.
type StrategyConfig struct {
	OpeningRangeEnd  string        `mapstructure:"opening_range_end"`
	VolumeLookback   int           `mapstructure:"volume_lookback"`
	EntryOffset      float64       `mapstructure:"entry_offset"`
	StopPct          float64       `mapstructure:"stop_pct"`
	BarInterval      string        `mapstructure:"bar_interval"`
	HistoryDays      int           `mapstructure:"history_days"`
	BarRetries       int           `mapstructure:"bar_retries"`
	BarRetryDelay    time.Duration `mapstructure:"bar_retry_delay"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
}

// SessionConfig holds the trading day schedule (IST).
type SessionConfig struct {
	Start           string        `mapstructure:"start"`
	End             string        `mapstructure:"end"`
	PollingInterval time.Duration `mapstructure:"polling_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig holds the status server configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// StoreConfig holds file locations.
type StoreConfig struct {
	Path        string `mapstructure:"path"`
	SessionPath string `mapstructure:"session_path"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	UserID     string `mapstructure:"user_id"`
	Password   string `mapstructure:"password"`    // For auto-login
	TOTPSecret string `mapstructure:"totp_secret"` // For auto-login with 2FA
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/bracket-trader"
	}
	return filepath.Join(home, ".config", "bracket-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)
	cfg.resolvePaths(configDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env from the working directory and then the config
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) error {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.exchange", "NSE")
	v.SetDefault("trading.product", "MIS")
	v.SetDefault("trading.tickers", []string{})
	v.SetDefault("trading.paper_capital", 1000000.0)

	v.SetDefault("risk.risk_fraction", 0.01)
	v.SetDefault("risk.reward_to_risk", 2.0)

	v.SetDefault("execution.retry_count", 3)
	v.SetDefault("execution.retry_delay", "2s")
	v.SetDefault("execution.restriction_codes", []string{"AB4036", "INSTRUMENT_RESTRICTED"})
	v.SetDefault("execution.restriction_hints", []string{"cautionary", "circuit", "price band"})
	v.SetDefault("execution.entry_order_type", "LIMIT")
	v.SetDefault("execution.pacing_rate", 2.5)
	v.SetDefault("execution.pacing_burst", 1)
	v.SetDefault("execution.timeout", "10s")

	v.SetDefault("strategy.opening_range_end", "09:19")
	v.SetDefault("strategy.volume_lookback", 10)
	v.SetDefault("strategy.entry_offset", 1.0)
	v.SetDefault("strategy.stop_pct", 0.02)
	v.SetDefault("strategy.bar_interval", "5minute")
	v.SetDefault("strategy.history_days", 5)
	v.SetDefault("strategy.bar_retries", 5)
	v.SetDefault("strategy.bar_retry_delay", "10s")
	v.SetDefault("strategy.fetch_concurrency", 4)

	v.SetDefault("session.start", "09:20")
	v.SetDefault("session.end", "15:10")
	v.SetDefault("session.polling_interval", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.path", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9102")

	v.SetDefault("store.path", "")
	v.SetDefault("store.session_path", "")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, create template
			return createTemplateConfig(configDir)
		}
		return err
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_USER_ID"); v != "" {
		cfg.Credentials.Kite.UserID = v
	}
	if v := os.Getenv("KITE_PASSWORD"); v != "" {
		cfg.Credentials.Kite.Password = v
	}
	if v := os.Getenv("KITE_TOTP_SECRET"); v != "" {
		cfg.Credentials.Kite.TOTPSecret = v
	}

	// Trading mode
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

func (c *Config) resolvePaths(configDir string) {
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(configDir, "journal.db")
	}
	if c.Store.SessionPath == "" {
		c.Store.SessionPath = filepath.Join(configDir, "session.json")
	}
	if c.Logging.Path == "" {
		c.Logging.Path = filepath.Join(configDir, "logs", "trader.log")
	}
	for i, t := range c.Trading.Tickers {
		c.Trading.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate trading mode
	if c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	switch c.Trading.Product {
	case "MIS", "CNC", "NRML":
	default:
		return fmt.Errorf("invalid product: %s", c.Trading.Product)
	}

	// Validate risk parameters
	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction > 1 {
		return fmt.Errorf("risk_fraction must be in (0, 1]")
	}
	if c.Risk.RewardToRisk <= 0 {
		return fmt.Errorf("reward_to_risk must be positive")
	}

	// Validate execution
	if c.Execution.RetryCount < 1 {
		return fmt.Errorf("retry_count must be at least 1")
	}
	if c.Execution.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be non-negative")
	}
	switch strings.ToUpper(c.Execution.EntryOrderType) {
	case "LIMIT", "MARKET":
	default:
		return fmt.Errorf("entry_order_type must be LIMIT or MARKET, got %q", c.Execution.EntryOrderType)
	}
	if c.Execution.PacingRate <= 0 {
		return fmt.Errorf("pacing_rate must be positive")
	}

	// Validate strategy
	if _, err := utils.ParseClock(c.Strategy.OpeningRangeEnd); err != nil {
		return fmt.Errorf("opening_range_end: %w", err)
	}
	if c.Strategy.VolumeLookback < 1 {
		return fmt.Errorf("volume_lookback must be at least 1")
	}
	if c.Strategy.EntryOffset < 0 {
		return fmt.Errorf("entry_offset must be non-negative")
	}
	if c.Strategy.StopPct <= 0 || c.Strategy.StopPct >= 1 {
		return fmt.Errorf("stop_pct must be in (0, 1)")
	}
	if c.Strategy.BarRetries < 1 {
		return fmt.Errorf("bar_retries must be at least 1")
	}

	// Validate session
	start, err := utils.ParseClock(c.Session.Start)
	if err != nil {
		return fmt.Errorf("session start: %w", err)
	}
	end, err := utils.ParseClock(c.Session.End)
	if err != nil {
		return fmt.Errorf("session end: %w", err)
	}
	if !start.Before(end) {
		return fmt.Errorf("session start %s must be before end %s", start, end)
	}
	if c.Session.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive")
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}

// Redacted returns a copy with credentials masked, safe to print.
func (c *Config) Redacted() Config {
	out := *c
	out.Trading.Tickers = append([]string(nil), c.Trading.Tickers...)
	k := &out.Credentials.Kite
	k.APIKey = security.MaskCredential(k.APIKey)
	k.APISecret = security.MaskCredential(k.APISecret)
	k.Password = security.MaskCredential(k.Password)
	k.TOTPSecret = security.MaskCredential(k.TOTPSecret)
	return out
}
