package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/yairfalse/kera/config"
	"github.com/yairfalse/kera/engine"
	"github.com/yairfalse/kera/providers"
	_ "github.com/yairfalse/kera/providers/aws"  // Register AWS resource types
	_ "github.com/yairfalse/kera/providers/kube" // Register Kubernetes resource types
	"github.com/yairfalse/kera/report"
	"github.com/yairfalse/kera/storage"
	"github.com/yairfalse/kera/targets"
	"github.com/yairfalse/kera/types"
)

var (
	collectOutput string
	collectKinds  string
	collectSave   bool
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Take a one-shot inventory across all configured targets",
	Long: `Collect a point-in-time inventory of resources across every configured
AWS account and region and every Kubernetes cluster context, in one run.

Work units (target × resource type) are fanned out under bounded
concurrency; transient backend failures are retried, partial results
are reported per unit, and the merged resource list is deduplicated
run-wide.`,
	Example: `  kera collect                               # Collect with defaults
  kera collect --config kera.yaml            # Use a config file
  kera collect --output csv > inventory.csv  # CSV export
  kera collect --kinds aws/ec2-instance      # Only EC2 instances
  kera collect --save                        # Persist the report`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVarP(&collectOutput, "output", "o", "table", "Output format: table, json, csv")
	collectCmd.Flags().StringVarP(&collectKinds, "kinds", "k", "", "Comma-separated resource kinds to collect (default all)")
	collectCmd.Flags().BoolVar(&collectSave, "save", false, "Persist the report to the local store")
}

func runCollect(cmd *cobra.Command, args []string) error {
	validOutputs := map[string]bool{"table": true, "json": true, "csv": true}
	if !validOutputs[collectOutput] {
		return fmt.Errorf("invalid output format: %s (must be one of: table, json, csv)", collectOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rpt, err := collectOnce(ctx, cfg)
	if err != nil {
		return err
	}

	if collectSave {
		store, err := storage.NewReportStore(cfg.Storage.Dir)
		if err != nil {
			return fmt.Errorf("failed to open report store: %w", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.Save(rpt); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report saved: %s\n", rpt.RunID)
	}

	return render(os.Stdout, rpt, collectOutput)
}

// collectOnce runs one full collection: resolve targets, fan out all work
// units, and build the merged report. Shared by collect and daemon modes.
func collectOnce(ctx context.Context, cfg *config.Config) (*report.InventoryReport, error) {
	started := time.Now()

	handles, err := buildHandles(ctx, cfg)
	if err != nil {
		return nil, err
	}

	targetSet, err := targets.Resolve(handles)
	if err != nil {
		return nil, err
	}

	rtypes := selectedKinds(providers.All(), collectKinds)
	if len(rtypes) == 0 {
		return nil, fmt.Errorf("no resource types selected")
	}

	units := engine.BuildUnits(targetSet, rtypes)
	outcomes := engine.New(engineOptions(cfg)).Collect(ctx, units)

	return report.Build(started, outcomes), nil
}

func engineOptions(cfg *config.Config) engine.Options {
	opts := engine.Options{
		GlobalConcurrency:     cfg.Engine.GlobalConcurrency,
		PerBackendConcurrency: cfg.Engine.PerBackendConcurrency,
		PerUnitTimeout:        cfg.Engine.PerUnitTimeout,
		MaxRetries:            cfg.Engine.MaxRetries,
		MaxPages:              cfg.Engine.MaxPages,
	}
	if rps := cfg.Engine.RequestsPerSecond; rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		opts.Limiters = map[types.BackendKind]*rate.Limiter{
			types.BackendAWS:        rate.NewLimiter(rate.Limit(rps), burst),
			types.BackendKubernetes: rate.NewLimiter(rate.Limit(rps), burst),
		}
	}
	return opts
}

func selectedKinds(all []providers.ResourceType, filter string) []providers.ResourceType {
	if filter == "" {
		return all
	}
	wanted := map[string]bool{}
	for _, kind := range strings.Split(filter, ",") {
		wanted[strings.TrimSpace(kind)] = true
	}
	var out []providers.ResourceType
	for _, rt := range all {
		if wanted[rt.Kind] {
			out = append(out, rt)
		}
	}
	return out
}
