package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spot-trading-bot/internal/engine"
	"spot-trading-bot/internal/logger"
	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/trace"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the configuration file")
	planFlags := registerPlanFlags()
	flag.Parse()

	if err := initializeSystem(); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		if err := trace.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "tracer shutdown: %v\n", err)
		}
	}()

	cfg, err := store.LoadConfig(*cfgPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		os.Exit(1)
	}

	compressOldLogs(ctx)

	st, err := store.Open(cfg.State.Dir, cfg.State.HistoryLimit)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open state store", err)
		os.Exit(1)
	}

	policy := store.NewPolicyHandle(cfg.Risk)
	venue := initializeVenue(ctx, cfg)
	eng := engine.New(cfg, venue, st, policy)

	// One-shot plan from flags, executed before the monitor takes over.
	if plan, ok := planFlags.plan(cfg); ok {
		result := eng.Submit(ctx, plan)
		b, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(b))
	}

	errc := make(chan error, 1)
	go func() { errc <- eng.Monitor().Run(ctx) }()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	hupc := make(chan os.Signal, 1)
	signal.Notify(hupc, syscall.SIGHUP)

	logger.Info(ctx, "Bot started",
		"mode", cfg.Mode,
		"venue", cfg.Venue,
		"open_positions", len(st.OpenPositions()),
	)

	for {
		select {
		case <-hupc:
			reloadPolicy(ctx, *cfgPath, policy)
		case <-sigc:
			logger.Info(ctx, "Shutting down")
			cancel()
			<-errc
			if err := st.Save(); err != nil {
				logger.ErrorWithErr(ctx, "Failed to save state on shutdown", err)
			}
			return
		case err := <-errc:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorWithErr(ctx, "Position monitor exited", err)
				os.Exit(1)
			}
			return
		}
	}
}
