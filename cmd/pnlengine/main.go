// Command pnlengine runs the wallet PnL service: it ingests activity,
// price, and resolution feeds from NATS, keeps per-wallet reports
// current, and serves metrics and health probes. It also doubles as a
// one-shot CLI for ad-hoc reports and refresh sweeps.
//
// Usage:
//
//	pnlengine serve [-config file.yaml]
//	pnlengine report -wallet 0xabc [-semantics full_history] [-window-days 30]
//	pnlengine refresh [-parallelism 8]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rawborkchop/polymarket-wallet-analysis/internal/cache"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/config"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/observability"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/pnl"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/position"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/store"
	"github.com/rawborkchop/polymarket-wallet-analysis/internal/worker"
)

// splitCommand peels a subcommand off the argument list. A leading flag
// (or an empty first argument) leaves the default "serve" in place.
func splitCommand(args []string) (string, []string) {
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		return args[0], args[1:]
	}
	return "serve", args
}

func main() {
	cmd, args := splitCommand(os.Args[1:])

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "report":
		err = runReport(args)
	case "refresh":
		err = runRefresh(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use serve, report, or refresh)\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pnlengine %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := observability.NewLogger("pnlengine")
	log.Info().Msg("pnlengine starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	pg, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pg.Close()
	log.Info().Msg("postgres connected")

	if err := store.NewMigrator(pg.DB(), cfg.MigrationsDir, log).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Redis result cache ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	resultCache := cache.New(rdb, cfg.CacheTTL, metrics, log)
	log.Info().Msg("redis connected")

	// --- Engine ---
	engine := pnl.NewEngine(pg, position.Budget{
		MaxEvents:   cfg.ReplayMaxEvents,
		MaxDuration: cfg.ReplayMaxDuration,
	}, metrics, log)

	// --- NATS ---
	nc, js, err := worker.ConnectNATS(cfg.NATSURL, log)
	if err != nil {
		return err
	}
	defer nc.Close()
	log.Info().Msg("nats connected")

	if err := worker.EnsureStreams(ctx, js); err != nil {
		return err
	}

	publisher := worker.NewReportPublisher(nc)
	refresher := worker.NewRefresher(pg, engine, resultCache, publisher, metrics, log)

	subscriber := worker.NewSubscriber(js, pg, resultCache, refresher, log)
	if err := subscriber.Subscribe(ctx); err != nil {
		return err
	}
	defer subscriber.Stop()

	errChan := make(chan error, 4)

	// --- Periodic refresh sweep ---
	go func() {
		if err := refresher.RunPeriodic(ctx, cfg.RefreshInterval, cfg.RefreshParallelism); err != nil && ctx.Err() == nil {
			errChan <- fmt.Errorf("refresher: %w", err)
		}
	}()

	// --- Metrics + health server ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	health.SetReady(true)
	log.Info().Msg("pnlengine ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("component failed, shutting down")
	}

	health.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	log.Info().Msg("pnlengine shutdown complete")
	return nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	wallet := fs.String("wallet", "", "wallet address (required)")
	semantics := fs.String("semantics", "full_history", "full_history, window_snapshot, or window_realized")
	windowDays := fs.Int("window-days", 30, "window length for windowed semantics")
	oracle := fs.String("oracle", "", "optional ground-truth total to compare against")
	fs.Parse(args)

	if *wallet == "" {
		return fmt.Errorf("-wallet is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := observability.NewLogger("pnlengine-report")
	ctx := context.Background()

	pg, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	engine := pnl.NewEngine(pg, position.Budget{
		MaxEvents:   cfg.ReplayMaxEvents,
		MaxDuration: cfg.ReplayMaxDuration,
	}, nil, log)

	in, err := pg.ReplayInput(ctx, *wallet)
	if err != nil {
		return err
	}
	if len(in.Events) == 0 {
		return fmt.Errorf("no events stored for wallet %s", *wallet)
	}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -*windowDays)

	var report *pnl.Report
	switch pnl.Semantics(*semantics) {
	case pnl.SemanticsFullHistory:
		report, err = engine.FullHistory(ctx, in, now)
	case pnl.SemanticsWindowSnapshot:
		report, err = engine.WindowSnapshot(ctx, in, start, now)
	case pnl.SemanticsWindowRealized:
		report, err = engine.WindowRealized(ctx, in, start, now)
	default:
		return fmt.Errorf("unknown semantics %q", *semantics)
	}
	if err != nil {
		return err
	}

	if *oracle != "" {
		truth, err := parseOracle(*oracle)
		if err != nil {
			return err
		}
		d := engine.CompareWithOracle(report, truth)
		fmt.Fprintf(os.Stderr, "oracle gap: abs=%s rel=%s\n", d.AbsGap, d.RelGap)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	parallelism := fs.Int("parallelism", 8, "concurrent wallet refreshes")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := observability.NewLogger("pnlengine-refresh")
	ctx := context.Background()

	pg, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	engine := pnl.NewEngine(pg, position.Budget{
		MaxEvents:   cfg.ReplayMaxEvents,
		MaxDuration: cfg.ReplayMaxDuration,
	}, nil, log)

	refresher := worker.NewRefresher(pg, engine, nil, nil, nil, log)
	return refresher.RefreshAll(ctx, *parallelism)
}

func parseOracle(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse oracle total %q: %w", s, err)
	}
	return d, nil
}
