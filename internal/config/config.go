package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	envAPIKey    = "API_KEY"
	envSecretKey = "SECRET_KEY"
)

type Config struct {
	Symbol        string              `yaml:"symbol"`
	InstanceID    string              `yaml:"instance_id"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Taker         TakerConfig         `yaml:"taker"`
	State         StateConfig         `yaml:"state"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ExchangeConfig struct {
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	SpotBaseURL    string `yaml:"spot_base_url"`
	FuturesBaseURL string `yaml:"futures_base_url"`
	OptionsBaseURL string `yaml:"options_base_url"`
	RecvWindowMs   int64  `yaml:"recv_window_ms"`
	HTTPTimeoutSec int64  `yaml:"http_timeout_sec"`
	RateLimitRPS   int    `yaml:"rate_limit_rps"`
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

type TakerConfig struct {
	PriceOffset       Decimal `yaml:"price_offset"`
	TimeInForce       string  `yaml:"time_in_force"`
	DepthLimit        int     `yaml:"depth_limit"`
	PollIntervalSec   int64   `yaml:"poll_interval_sec"`
	EmptyBookDelaySec int64   `yaml:"empty_book_delay_sec"`
	MaxIterations     int     `yaml:"max_iterations"`
	MaxPollAttempts   int     `yaml:"max_poll_attempts"`
	MaxPlaceFailures  int     `yaml:"max_place_failures"`
	MaxPollFailures   int     `yaml:"max_poll_failures"`
	Rules             Rules   `yaml:"rules"`
}

type Rules struct {
	MinQty      Decimal `yaml:"min_qty"`
	MinNotional Decimal `yaml:"min_notional"`
	PriceTick   Decimal `yaml:"price_tick"`
	QtyStep     Decimal `yaml:"qty_step"`
}

type StateConfig struct {
	Dir          string `yaml:"dir"`
	LockTakeover *bool  `yaml:"lock_takeover"`
	LockStaleSec int64  `yaml:"lock_stale_sec"`
}

type ObservabilityConfig struct {
	Log      LogConfig      `yaml:"log"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.InstanceID = strings.ToLower(strings.TrimSpace(c.InstanceID))
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.SpotBaseURL = strings.TrimSpace(c.Exchange.SpotBaseURL)
	c.Exchange.FuturesBaseURL = strings.TrimSpace(c.Exchange.FuturesBaseURL)
	c.Exchange.OptionsBaseURL = strings.TrimSpace(c.Exchange.OptionsBaseURL)
	c.Taker.TimeInForce = strings.ToUpper(strings.TrimSpace(c.Taker.TimeInForce))
	c.State.Dir = strings.TrimSpace(c.State.Dir)
	c.Observability.Log.Level = strings.ToLower(strings.TrimSpace(c.Observability.Log.Level))
	c.Observability.Log.File = strings.TrimSpace(c.Observability.Log.File)
	c.Observability.Telegram.BotToken = strings.TrimSpace(c.Observability.Telegram.BotToken)
	c.Observability.Telegram.ChatID = strings.TrimSpace(c.Observability.Telegram.ChatID)
	c.Observability.Telegram.APIBaseURL = strings.TrimSpace(c.Observability.Telegram.APIBaseURL)

	// Environment always wins for credentials so keys never have to live in
	// a config file checked into anything.
	if v := strings.TrimSpace(os.Getenv(envAPIKey)); v != "" {
		c.Exchange.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envSecretKey)); v != "" {
		c.Exchange.APISecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "default"
	}
	if c.Exchange.SpotBaseURL == "" {
		c.Exchange.SpotBaseURL = "https://api.binance.com"
	}
	if c.Exchange.FuturesBaseURL == "" {
		c.Exchange.FuturesBaseURL = "https://fapi.binance.com"
	}
	if c.Exchange.OptionsBaseURL == "" {
		c.Exchange.OptionsBaseURL = "https://eapi.binance.com"
	}
	if c.Exchange.RecvWindowMs == 0 {
		c.Exchange.RecvWindowMs = 5000
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 15
	}
	if c.Exchange.RateLimitRPS == 0 {
		c.Exchange.RateLimitRPS = 5
	}
	if c.Exchange.RateLimitBurst == 0 {
		c.Exchange.RateLimitBurst = 10
	}
	if c.Taker.TimeInForce == "" {
		c.Taker.TimeInForce = "GTC"
	}
	if c.Taker.DepthLimit == 0 {
		c.Taker.DepthLimit = 100
	}
	if c.Taker.PollIntervalSec == 0 {
		c.Taker.PollIntervalSec = 3
	}
	if c.Taker.EmptyBookDelaySec == 0 {
		c.Taker.EmptyBookDelaySec = 5
	}
	if c.Taker.MaxIterations == 0 {
		c.Taker.MaxIterations = 50
	}
	if c.Taker.MaxPollAttempts == 0 {
		c.Taker.MaxPollAttempts = 40
	}
	if c.Taker.MaxPlaceFailures == 0 {
		c.Taker.MaxPlaceFailures = 5
	}
	if c.Taker.MaxPollFailures == 0 {
		c.Taker.MaxPollFailures = 10
	}
	if c.State.Dir == "" {
		c.State.Dir = "state"
	}
	if c.State.LockTakeover == nil {
		enabled := true
		c.State.LockTakeover = &enabled
	}
	if c.State.LockStaleSec == 0 {
		c.State.LockStaleSec = 600
	}
	if c.Observability.Log.Level == "" {
		c.Observability.Log.Level = "info"
	}
	if c.Observability.Log.MaxSizeMB == 0 {
		c.Observability.Log.MaxSizeMB = 50
	}
	if c.Observability.Log.MaxBackups == 0 {
		c.Observability.Log.MaxBackups = 5
	}
	if c.Observability.Telegram.APIBaseURL == "" {
		c.Observability.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Observability.Telegram.TimeoutSec == 0 {
		c.Observability.Telegram.TimeoutSec = 10
	}
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !isValidSymbol(c.Symbol) {
		return fmt.Errorf("symbol must match [A-Z0-9-], length 6..32")
	}
	if !isValidInstanceID(c.InstanceID) {
		return fmt.Errorf("instance_id must match [a-z0-9_-], length 1..24")
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange api_key/api_secret are required (config or %s/%s env)", envAPIKey, envSecretKey)
	}
	if c.Exchange.RecvWindowMs < 1 || c.Exchange.RecvWindowMs > 60000 {
		return fmt.Errorf("exchange recv_window_ms must be between 1 and 60000")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
	}
	if c.Exchange.RateLimitRPS < 1 || c.Exchange.RateLimitRPS > 100 {
		return fmt.Errorf("exchange rate_limit_rps must be between 1 and 100")
	}
	if c.Exchange.RateLimitBurst < 1 {
		return fmt.Errorf("exchange rate_limit_burst must be >= 1")
	}
	for _, u := range []struct {
		name, value string
	}{
		{"spot_base_url", c.Exchange.SpotBaseURL},
		{"futures_base_url", c.Exchange.FuturesBaseURL},
		{"options_base_url", c.Exchange.OptionsBaseURL},
	} {
		if err := validateURL(u.value, "http", "https"); err != nil {
			return fmt.Errorf("exchange %s %v", u.name, err)
		}
	}
	switch c.Taker.TimeInForce {
	case "GTC", "IOC", "FOK":
	default:
		return fmt.Errorf("taker time_in_force must be GTC, IOC, or FOK")
	}
	if !isAllowedDepthLimit(c.Taker.DepthLimit) {
		return fmt.Errorf("taker depth_limit must be one of 10, 20, 50, 100, 500, 1000")
	}
	if c.Taker.PriceOffset.Cmp(decimal.Zero) < 0 {
		return fmt.Errorf("taker price_offset must be >= 0")
	}
	if c.Taker.PollIntervalSec < 1 || c.Taker.PollIntervalSec > 60 {
		return fmt.Errorf("taker poll_interval_sec must be between 1 and 60")
	}
	if c.Taker.EmptyBookDelaySec < 1 || c.Taker.EmptyBookDelaySec > 300 {
		return fmt.Errorf("taker empty_book_delay_sec must be between 1 and 300")
	}
	if c.Taker.MaxIterations < 1 || c.Taker.MaxIterations > 1000 {
		return fmt.Errorf("taker max_iterations must be between 1 and 1000")
	}
	if c.Taker.MaxPollAttempts < 1 || c.Taker.MaxPollAttempts > 1000 {
		return fmt.Errorf("taker max_poll_attempts must be between 1 and 1000")
	}
	if c.Taker.MaxPlaceFailures < 1 {
		return fmt.Errorf("taker max_place_failures must be >= 1")
	}
	if c.Taker.MaxPollFailures < 1 {
		return fmt.Errorf("taker max_poll_failures must be >= 1")
	}
	for _, r := range []struct {
		name  string
		value Decimal
	}{
		{"min_qty", c.Taker.Rules.MinQty},
		{"min_notional", c.Taker.Rules.MinNotional},
		{"price_tick", c.Taker.Rules.PriceTick},
		{"qty_step", c.Taker.Rules.QtyStep},
	} {
		if r.value.Cmp(decimal.Zero) < 0 {
			return fmt.Errorf("taker rules.%s must be >= 0", r.name)
		}
	}
	if c.State.LockStaleSec < 0 || c.State.LockStaleSec > 86400 {
		return fmt.Errorf("state.lock_stale_sec must be between 0 and 86400")
	}
	if c.Observability.Telegram.Enabled {
		if c.Observability.Telegram.BotToken == "" {
			return fmt.Errorf("observability.telegram.bot_token is required when telegram enabled")
		}
		if c.Observability.Telegram.ChatID == "" {
			return fmt.Errorf("observability.telegram.chat_id is required when telegram enabled")
		}
		if c.Observability.Telegram.TimeoutSec < 1 || c.Observability.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("observability.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Observability.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("observability.telegram.api_base_url %v", err)
		}
	}
	return nil
}

// Redact keeps only the first and last four characters of a secret for
// diagnostic output. Short secrets are fully masked.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func isAllowedDepthLimit(limit int) bool {
	switch limit {
	case 10, 20, 50, 100, 500, 1000:
		return true
	}
	return false
}

func isValidInstanceID(v string) bool {
	if len(v) < 1 || len(v) > 24 {
		return false
	}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			continue
		}
		return false
	}
	return true
}

// isValidSymbol accepts both spot pairs (BTCUSDT) and option contract names
// (ETH-250725-3600-C).
func isValidSymbol(v string) bool {
	if len(v) < 6 || len(v) > 32 {
		return false
	}
	for _, r := range v {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return false
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
