package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/yairfalse/kera/config"
	"github.com/yairfalse/kera/internal/telemetry"
	"github.com/yairfalse/kera/report"
	"github.com/yairfalse/kera/storage"
	logging "github.com/yairfalse/kera/telemetry"
)

var (
	daemonInterval    time.Duration
	daemonMetricsAddr string
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Collect inventory continuously on an interval",
	Long: `Run Kera in daemon mode: re-collect the full inventory from scratch at
a fixed interval, persist every run's report to the local store, and
export collection metrics.

Each cycle is a complete fresh run; nothing is cached across cycles.
Prometheus metrics are served on /metrics, and OTLP export is enabled
when the config names a telemetry endpoint.`,
	Example: `  kera daemon                      # Hourly collection with defaults
  kera daemon --interval 30m       # Custom interval
  kera daemon --metrics-addr :2112 # Custom metrics address`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Collection interval (default from config, 1h)")
	daemonCmd.Flags().StringVar(&daemonMetricsAddr, "metrics-addr", "", "Metrics HTTP server address (default from config, :9090)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if daemonInterval > 0 {
		cfg.Daemon.Interval = daemonInterval
	}
	if daemonMetricsAddr != "" {
		cfg.Daemon.MetricsAddr = daemonMetricsAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	store, err := storage.NewReportStore(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("failed to open report store: %w", err)
	}
	defer func() { _ = store.Close() }()

	logger := logging.NewLogger("daemon")
	logger.Info().
		Dur("interval", cfg.Daemon.Interval).
		Str("metrics_addr", cfg.Daemon.MetricsAddr).
		Str("storage_dir", cfg.Storage.Dir).
		Msg("kera daemon starting")

	var group run.Group

	// Shutdown on SIGINT/SIGTERM.
	group.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	// Metrics server.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: cfg.Daemon.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	group.Add(
		func() error {
			logger.Info().Str("addr", cfg.Daemon.MetricsAddr).Msg("starting metrics server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		func(error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Shutdown(shutdownCtx)
		},
	)

	// Collection loop.
	loopCtx, loopCancel := context.WithCancel(ctx)
	group.Add(
		func() error {
			return collectLoop(loopCtx, cfg, store, provider, logger)
		},
		func(error) {
			loopCancel()
		},
	)

	err = group.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

// collectLoop collects immediately, then on every interval tick until ctx
// is cancelled. A failed cycle is logged and the loop keeps going.
func collectLoop(ctx context.Context, cfg *config.Config, store *storage.ReportStore, provider *telemetry.Provider, logger *logging.Logger) error {
	collectCycle(ctx, cfg, store, provider, logger)

	ticker := time.NewTicker(cfg.Daemon.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			collectCycle(ctx, cfg, store, provider, logger)
		case <-ctx.Done():
			return nil
		}
	}
}

func collectCycle(ctx context.Context, cfg *config.Config, store *storage.ReportStore, provider *telemetry.Provider, logger *logging.Logger) {
	cycleCtx, span := provider.StartSpan(ctx, "collect_cycle")
	defer span.End()

	rpt, err := collectOnce(cycleCtx, cfg)
	if err != nil {
		logger.WithContext(cycleCtx).Error().Err(err).Msg("collection cycle failed")
		return
	}

	recordRun(cycleCtx, provider, rpt)

	if err := store.Save(rpt); err != nil {
		logger.WithContext(cycleCtx).Error().Err(err).Str("run_id", rpt.RunID).Msg("failed to save report")
	}

	logger.WithContext(cycleCtx).Info().
		Str("run_id", rpt.RunID).
		Int("resources", rpt.Summary.Resources).
		Int("units", rpt.Summary.Units).
		Int("failed", rpt.Summary.Failed+rpt.Summary.Timeout).
		Dur("duration", rpt.Duration).
		Msg("collection cycle complete")
}

func recordRun(ctx context.Context, provider *telemetry.Provider, rpt *report.InventoryReport) {
	provider.RecordRunDuration(ctx, rpt.Duration)
	for _, status := range rpt.Statuses {
		provider.RecordUnit(ctx, status.Backend, status.Target, status.Kind, status.Status, status.Resources, status.Duration)
	}
	for kind, count := range rpt.Summary.DuplicatesRemoved {
		provider.RecordDuplicatesRemoved(ctx, kind, count)
	}
}
