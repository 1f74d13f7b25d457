package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/kera/config"
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "kera",
		Short: "Multi-Target Inventory Collector",
		Long: `Kera - Multi-Target Inventory Collector

Kera takes a point-in-time inventory of cloud resources across many
AWS accounts and regions and Kubernetes clusters in one run. It fans
out listings under bounded concurrency, retries transient backend
failures, and merges everything into a single deduplicated report.

Collection is read-only: Kera never mutates a remote resource.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Kera {{.Version}} - Multi-Target Inventory Collector
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig resolves the run configuration from --config or defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyLogLevel(cfg.LogLevel)
	return cfg, nil
}

func applyLogLevel(level string) {
	if debug {
		return // --debug wins
	}
	if parsed, err := zerolog.ParseLevel(level); err == nil && parsed != zerolog.NoLevel {
		zerolog.SetGlobalLevel(parsed)
	}
}
