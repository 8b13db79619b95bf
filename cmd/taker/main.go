package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"option-taker/internal/alert"
	"option-taker/internal/config"
	"option-taker/internal/core"
	"option-taker/internal/exchange/binance"
	"option-taker/internal/executor"
	"option-taker/internal/logger"
	"option-taker/internal/safety"
	"option-taker/internal/store"
)

func main() {
	var (
		configPath string
		symbol     string
		side       string
		quantity   string
		offset     string
		tif        string
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&symbol, "symbol", "", "contract symbol (overrides config), e.g. ETH-250725-3600-C")
	flag.StringVar(&side, "side", "SELL", "order side: BUY or SELL")
	flag.StringVar(&quantity, "quantity", "", "target quantity to fill (required)")
	flag.StringVar(&offset, "offset", "", "price offset from same-side best (overrides config)")
	flag.StringVar(&tif, "time-in-force", "", "GTC, IOC, or FOK (overrides config)")
	flag.Parse()

	// .env is optional; real deployments export the variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if symbol != "" {
		cfg.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	}
	if offset != "" {
		v, err := decimal.NewFromString(offset)
		if err != nil {
			fatal("invalid -offset: " + err.Error())
		}
		cfg.Taker.PriceOffset = config.Decimal{Decimal: v}
	}
	if tif != "" {
		cfg.Taker.TimeInForce = strings.ToUpper(strings.TrimSpace(tif))
	}
	if quantity == "" {
		fatal("-quantity is required")
	}
	targetQty, err := decimal.NewFromString(quantity)
	if err != nil || targetQty.Cmp(decimal.Zero) <= 0 {
		fatal("-quantity must be a positive decimal")
	}
	orderSide := core.Side(strings.ToUpper(strings.TrimSpace(side)))
	if orderSide != core.Buy && orderSide != core.Sell {
		fatal("-side must be BUY or SELL")
	}

	log := logger.New(cfg.Observability.Log)
	log.WithFields(logger.Fields{
		"symbol":  cfg.Symbol,
		"side":    orderSide,
		"qty":     targetQty.String(),
		"api_key": config.Redact(cfg.Exchange.APIKey),
	}).Info("starting taker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateDir := filepath.Join(cfg.State.Dir, cfg.Symbol, cfg.InstanceID)
	journal, err := store.NewJournal(stateDir)
	if err != nil {
		fatal(err.Error())
	}
	instanceLock, err := store.AcquireInstanceLock(stateDir, store.LockOptions{
		TakeoverEnabled: cfg.State.LockTakeover == nil || *cfg.State.LockTakeover,
		StaleAfter:      time.Duration(cfg.State.LockStaleSec) * time.Second,
	})
	if err != nil {
		fatal(err.Error())
	}
	defer func() {
		if relErr := instanceLock.Release(); relErr != nil {
			fmt.Fprintf(os.Stderr, "release instance lock failed: %v\n", relErr)
		}
	}()

	alerts := alert.NewManager(cfg.Symbol, cfg.InstanceID, alert.NewTelegramNotifier(cfg.Observability.Telegram), log)
	if alerts != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := alerts.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "close alert manager failed: %v\n", err)
			}
		}()
	}

	client, err := binance.NewClient(cfg.Exchange, cfg.InstanceID, log)
	if err != nil {
		fatal(err.Error())
	}

	rules := core.Rules{
		MinQty:      cfg.Taker.Rules.MinQty.Decimal,
		MinNotional: cfg.Taker.Rules.MinNotional.Decimal,
		PriceTick:   cfg.Taker.Rules.PriceTick.Decimal,
		QtyStep:     cfg.Taker.Rules.QtyStep.Decimal,
	}
	if rules.PriceTick.IsZero() && rules.QtyStep.IsZero() {
		if resolved, err := client.ContractRules(ctx, cfg.Symbol); err != nil {
			log.WithError(err).Warn("contract rules lookup failed, placing orders unsnapped")
		} else {
			rules = resolved
		}
	}

	exec := &executor.Executor{
		Market:          client,
		Journal:         journal,
		Breaker:         safety.NewBreaker(cfg.Taker.MaxPlaceFailures, cfg.Taker.MaxPollFailures),
		Alerts:          alerts,
		Log:             log.WithField("component", "executor"),
		Symbol:          cfg.Symbol,
		Side:            orderSide,
		TargetQty:       targetQty,
		PriceOffset:     cfg.Taker.PriceOffset.Decimal,
		TimeInForce:     core.TimeInForce(cfg.Taker.TimeInForce),
		Rules:           rules,
		DepthLimit:      cfg.Taker.DepthLimit,
		PollInterval:    time.Duration(cfg.Taker.PollIntervalSec) * time.Second,
		EmptyBookDelay:  time.Duration(cfg.Taker.EmptyBookDelaySec) * time.Second,
		MaxIterations:   cfg.Taker.MaxIterations,
		MaxPollAttempts: cfg.Taker.MaxPollAttempts,
	}

	result, err := exec.Run(ctx)
	fmt.Printf(
		"summary symbol=%s side=%s target=%s filled=%s orders_placed=%d orders_filled=%d last_order_id=%d last_status=%s\n",
		cfg.Symbol,
		orderSide,
		targetQty.String(),
		result.FilledQty.String(),
		result.OrdersPlaced,
		result.OrdersFilled,
		result.LastOrderID,
		result.LastStatus,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("run canceled")
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(2)
}
