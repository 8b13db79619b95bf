package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"option-taker/internal/core"
	"option-taker/internal/exchange/binance"
)

// depth prints an order book snapshot with spread statistics for any of the
// three endpoint families.
func main() {
	var (
		symbol  string
		family  string
		limit   int
		rows    int
		baseURL string
		timeout int
	)
	flag.StringVar(&symbol, "symbol", "", "symbol, e.g. ETH-250725-3600-C or BTCUSDT (required)")
	flag.StringVar(&family, "family", "options", "endpoint family: options, spot, futures")
	flag.IntVar(&limit, "limit", 100, "depth limit: 10, 20, 50, 100, 500, 1000")
	flag.IntVar(&rows, "rows", 10, "levels to print per side")
	flag.StringVar(&baseURL, "base-url", "", "override the family base URL")
	flag.IntVar(&timeout, "timeout", 10, "http timeout seconds")
	flag.Parse()

	if symbol == "" {
		fatal("-symbol is required")
	}
	_ = godotenv.Load()

	opts := binance.Options{
		APIKey:         os.Getenv("API_KEY"),
		APISecret:      os.Getenv("SECRET_KEY"),
		SpotBaseURL:    "https://api.binance.com",
		FuturesBaseURL: "https://fapi.binance.com",
		OptionsBaseURL: "https://eapi.binance.com",
		HTTPTimeoutSec: int64(timeout),
	}
	if baseURL != "" {
		opts.SpotBaseURL = baseURL
		opts.FuturesBaseURL = baseURL
		opts.OptionsBaseURL = baseURL
	}
	client := binance.NewClientWithOptions(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout+5)*time.Second)
	defer cancel()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var (
		book core.OrderBook
		err  error
	)
	switch strings.ToLower(family) {
	case "options":
		book, err = client.Depth(ctx, symbol, limit)
	case "spot":
		book, err = client.SpotDepth(ctx, symbol, limit)
	case "futures":
		book, err = client.FuturesDepth(ctx, symbol, limit)
	default:
		fatal("-family must be options, spot, or futures")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "depth fetch failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("symbol=%s update_id=%d updated_at=%s\n", book.Symbol, book.UpdateID, book.UpdatedAt.Format(time.RFC3339))
	printSide("bids", book.Bids, rows)
	printSide("asks", book.Asks, rows)
	if spread, ok := book.Spread(); ok {
		bid, _ := book.BestBid()
		ask, _ := book.BestAsk()
		pct := decimal.Zero
		if ask.Price.Cmp(decimal.Zero) > 0 {
			pct = spread.Div(ask.Price).Mul(decimal.NewFromInt(100))
		}
		fmt.Printf("best_bid=%s best_ask=%s spread=%s spread_pct=%s\n",
			bid.Price.String(), ask.Price.String(), spread.String(), pct.StringFixed(3))
	}
}

func printSide(name string, levels []core.PriceLevel, rows int) {
	fmt.Printf("%s (%d levels):\n", name, len(levels))
	for i, level := range levels {
		if i >= rows {
			break
		}
		fmt.Printf("  %2d. price=%-12s qty=%s\n", i+1, level.Price.String(), level.Qty.String())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(2)
}
