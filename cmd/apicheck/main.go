package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"option-taker/internal/config"
	"option-taker/internal/core"
	"option-taker/internal/exchange/binance"
)

// apicheck probes each endpoint family once: public reachability, then a
// signed account call to validate the key and its permissions. It never
// retries, so a WAF empty-response anomaly shows up as exactly that.
func main() {
	var timeout int
	flag.IntVar(&timeout, "timeout", 10, "http timeout seconds")
	flag.Parse()

	_ = godotenv.Load()
	apiKey := os.Getenv("API_KEY")
	apiSecret := os.Getenv("SECRET_KEY")
	if apiKey == "" || apiSecret == "" {
		fmt.Fprintln(os.Stderr, "error: API_KEY and SECRET_KEY must be set")
		os.Exit(2)
	}
	fmt.Printf("api_key=%s secret_key=%s\n", config.Redact(apiKey), config.Redact(apiSecret))

	client := binance.NewClientWithOptions(binance.Options{
		APIKey:         apiKey,
		APISecret:      apiSecret,
		SpotBaseURL:    "https://api.binance.com",
		FuturesBaseURL: "https://fapi.binance.com",
		OptionsBaseURL: "https://eapi.binance.com",
		HTTPTimeoutSec: int64(timeout),
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(4*(timeout+2))*time.Second)
	defer cancel()

	failures := 0
	failures += check("spot time", func() error {
		_, err := client.SpotServerTime(ctx)
		return err
	})
	failures += check("spot account", func() error {
		_, err := client.SpotBalances(ctx)
		return err
	})
	failures += check("futures time", func() error {
		_, err := client.FuturesServerTime(ctx)
		return err
	})
	failures += check("futures balance", func() error {
		_, err := client.FuturesBalances(ctx)
		return err
	})
	failures += check("options exchangeInfo", func() error {
		_, err := client.Contracts(ctx, "")
		return err
	})
	failures += check("options account", func() error {
		_, err := client.OptionBalances(ctx)
		return err
	})

	if failures > 0 {
		fmt.Printf("result: %d check(s) failed\n", failures)
		os.Exit(1)
	}
	fmt.Println("result: all checks passed")
}

func check(name string, fn func() error) int {
	err := fn()
	if err == nil {
		fmt.Printf("ok   %s\n", name)
		return 0
	}
	fmt.Printf("FAIL %s: %v (%s)\n", name, err, classify(err))
	return 1
}

func classify(err error) string {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return "invalid api key"
	case errors.Is(err, core.ErrForbidden):
		return "key lacks permission for this endpoint family"
	case errors.Is(err, core.ErrEmptyResponse):
		return "empty response, likely a WAF intermediary; change network or IP"
	case errors.Is(err, core.ErrTransport):
		return "network unreachable"
	case errors.Is(err, core.ErrDecode):
		return "unexpected response body"
	default:
		if apiErr, ok := binance.AsAPIError(err); ok {
			return fmt.Sprintf("exchange error code %d", apiErr.Code)
		}
		return "unclassified"
	}
}
