package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
symbol: ETH-250725-3600-C
exchange:
  api_key: k
  api_secret: s
taker:
  price_offset: "2"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InstanceID != "default" {
		t.Fatalf("InstanceID = %q, want default", cfg.InstanceID)
	}
	if cfg.Exchange.OptionsBaseURL != "https://eapi.binance.com" {
		t.Fatalf("OptionsBaseURL = %q, want default", cfg.Exchange.OptionsBaseURL)
	}
	if cfg.Exchange.RecvWindowMs != 5000 {
		t.Fatalf("RecvWindowMs = %d, want 5000", cfg.Exchange.RecvWindowMs)
	}
	if cfg.Taker.TimeInForce != "GTC" {
		t.Fatalf("TimeInForce = %q, want GTC", cfg.Taker.TimeInForce)
	}
	if cfg.Taker.DepthLimit != 100 {
		t.Fatalf("DepthLimit = %d, want 100", cfg.Taker.DepthLimit)
	}
	if cfg.Taker.MaxIterations != 50 {
		t.Fatalf("MaxIterations = %d, want 50", cfg.Taker.MaxIterations)
	}
	if cfg.Taker.MaxPollAttempts != 40 {
		t.Fatalf("MaxPollAttempts = %d, want 40", cfg.Taker.MaxPollAttempts)
	}
	if !cfg.Taker.PriceOffset.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("PriceOffset = %s, want 2", cfg.Taker.PriceOffset)
	}
	if cfg.State.LockTakeover == nil || !*cfg.State.LockTakeover {
		t.Fatalf("LockTakeover default should be enabled")
	}
}

func TestLoadEnvCredentialsWin(t *testing.T) {
	t.Setenv("API_KEY", "env-key")
	t.Setenv("SECRET_KEY", "env-secret")
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("credentials = %q/%q, env must override file", cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	}
}

func TestLoadNormalizesSymbolCase(t *testing.T) {
	cfg, err := Load(writeConfig(t, strings.Replace(minimalConfig, "ETH-250725-3600-C", "eth-250725-3600-c", 1)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Symbol != "ETH-250725-3600-C" {
		t.Fatalf("Symbol = %q, want upper-cased", cfg.Symbol)
	}
}

func TestLoadRejectsNegativeDecimal(t *testing.T) {
	_, err := Load(writeConfig(t, strings.Replace(minimalConfig, `price_offset: "2"`, `price_offset: "-2"`, 1)))
	if err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("Load() error = %v, want negative decimal rejected at decode", err)
	}
}

func TestLoadRejectsNonScalarDecimal(t *testing.T) {
	_, err := Load(writeConfig(t, strings.Replace(minimalConfig, `price_offset: "2"`, "price_offset: [1, 2]", 1)))
	if err == nil {
		t.Fatalf("Load() with sequence decimal should fail")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"\nbogus_key: 1\n"))
	if err == nil {
		t.Fatalf("Load() with unknown field should fail")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing symbol", func(c *Config) { c.Symbol = "" }},
		{"bad symbol chars", func(c *Config) { c.Symbol = "eth_usdt!" }},
		{"missing credentials", func(c *Config) { c.Exchange.APIKey = "" }},
		{"recv window too large", func(c *Config) { c.Exchange.RecvWindowMs = 90000 }},
		{"bad base url", func(c *Config) { c.Exchange.OptionsBaseURL = "not a url" }},
		{"bad time in force", func(c *Config) { c.Taker.TimeInForce = "GTX" }},
		{"bad depth limit", func(c *Config) { c.Taker.DepthLimit = 42 }},
		{"negative offset", func(c *Config) { c.Taker.PriceOffset = Decimal{decimal.RequireFromString("-1")} }},
		{"telegram enabled without token", func(c *Config) {
			c.Observability.Telegram.Enabled = true
			c.Observability.Telegram.ChatID = "123"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
		})
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("abcdefghijkl"); got != "abcd****ijkl" {
		t.Fatalf("Redact() = %q, want %q", got, "abcd****ijkl")
	}
	if got := Redact("short"); got != "*****" {
		t.Fatalf("Redact(short) = %q, want fully masked", got)
	}
	if got := Redact(""); got != "" {
		t.Fatalf("Redact(empty) = %q, want empty", got)
	}
}
