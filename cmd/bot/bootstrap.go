package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"spot-trading-bot/internal/interfaces"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/trace"
	"spot-trading-bot/internal/tradelog"
	"spot-trading-bot/internal/types"
	"spot-trading-bot/internal/venue/paper"
	"spot-trading-bot/internal/venue/venueobs"
)

// initializeSystem loads the environment and initializes logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

// compressOldLogs gzips old audit files if retention is configured.
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeVenue builds the configured venue adapter wrapped with
// observability middleware.
func initializeVenue(ctx context.Context, cfg *store.Config) interfaces.Venue {
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders hit the paper venue only")
	}
	v := paper.New(paper.Params{
		QuoteAsset:   cfg.QuoteAsset,
		StartBalance: cfg.Paper.StartBalance,
		Prices:       cfg.Paper.Prices,
		Drift:        true,
	})
	return venueobs.Wrap(v)
}

// reloadPolicy re-reads the config file and atomically swaps the risk
// policy. An invalid file leaves the old policy in force.
func reloadPolicy(ctx context.Context, path string, policy *store.PolicyHandle) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Policy reload rejected, keeping previous policy", err, "path", path)
		return
	}
	if err := policy.Swap(cfg.Risk); err != nil {
		logger.ErrorWithErr(ctx, "Policy reload rejected, keeping previous policy", err, "path", path)
		return
	}
	logger.Info(ctx, "Risk policy reloaded",
		"max_trades_per_day", cfg.Risk.MaxTradesPerDay,
		"cooldown_minutes", cfg.Risk.CooldownMinutes,
		"confirm_above_notional", cfg.Risk.ConfirmAboveNotional,
	)
}

// planFlagSet collects the optional one-shot trade plan flags.
type planFlagSet struct {
	symbol   *string
	side     *string
	typ      *string
	notional *float64
	qty      *float64
	limit    *float64
	tp       *float64
	sl       *float64
	yes      *bool
	dryRun   *bool
}

func registerPlanFlags() *planFlagSet {
	return &planFlagSet{
		symbol:   flag.String("symbol", "", "symbol to trade (enables one-shot plan execution)"),
		side:     flag.String("side", "BUY", "plan side: BUY or SELL"),
		typ:      flag.String("type", "MARKET", "order type: MARKET or LIMIT"),
		notional: flag.Float64("notional", 0, "plan amount in quote currency (exclusive with -qty)"),
		qty:      flag.Float64("qty", 0, "plan amount in base units (exclusive with -notional)"),
		limit:    flag.Float64("limit", 0, "limit price for LIMIT plans"),
		tp:       flag.Float64("tp", 0, "take-profit percent override"),
		sl:       flag.Float64("sl", 0, "stop-loss percent override"),
		yes:      flag.Bool("yes", false, "set the execute-now flag (skip confirmation threshold)"),
		dryRun:   flag.Bool("dry-run", false, "run all risk checks but place no order"),
	}
}

// plan builds a TradePlan from the flags; ok is false when no -symbol was
// given. Exactly one of -notional and -qty must be set.
func (f *planFlagSet) plan(cfg *store.Config) (types.TradePlan, bool) {
	if *f.symbol == "" {
		return types.TradePlan{}, false
	}
	var amount types.Amount
	switch {
	case *f.notional > 0 && *f.qty > 0:
		fmt.Fprintln(os.Stderr, "exactly one of -notional and -qty may be set")
		os.Exit(2)
	case *f.notional > 0:
		amount = types.Notional(*f.notional)
	case *f.qty > 0:
		amount = types.Quantity(*f.qty)
	default:
		fmt.Fprintln(os.Stderr, "one of -notional or -qty is required with -symbol")
		os.Exit(2)
	}
	return types.TradePlan{
		Venue:         cfg.Venue,
		Market:        "spot",
		Symbol:        *f.symbol,
		Side:          types.Side(strings.ToUpper(*f.side)),
		Type:          types.OrderType(strings.ToUpper(*f.typ)),
		Amount:        amount,
		LimitPrice:    *f.limit,
		TakeProfitPct: *f.tp,
		StopLossPct:   *f.sl,
		ExecuteNow:    *f.yes,
		DryRun:        *f.dryRun,
	}, true
}
