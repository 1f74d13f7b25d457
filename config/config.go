// Package config loads and validates the YAML run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRegions is the region set scanned when aws.regions is empty.
// Low-traffic partitions are excluded by default; exclude_regions can trim
// this further and regions can override it entirely.
var DefaultRegions = []string{
	"ap-northeast-1", "ap-northeast-2", "ap-northeast-3",
	"ap-south-1", "ap-southeast-1", "ap-southeast-2",
	"ca-central-1",
	"eu-central-1", "eu-north-1", "eu-west-1", "eu-west-2", "eu-west-3",
	"sa-east-1",
	"us-east-1", "us-east-2", "us-west-1", "us-west-2",
}

// DefaultSkipProfiles are credential profiles never collected unless the
// profile list names them explicitly.
var DefaultSkipProfiles = []string{"default"}

// Config is the top-level run configuration.
type Config struct {
	Version    string     `yaml:"version"`
	AWS        AWS        `yaml:"aws"`
	Kubernetes Kubernetes `yaml:"kubernetes"`
	Engine     Engine     `yaml:"engine"`
	Daemon     Daemon     `yaml:"daemon"`
	Storage    Storage    `yaml:"storage"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	LogLevel   string     `yaml:"log_level"`
}

// AWS selects the profiles and regions to collect.
type AWS struct {
	Enabled         bool     `yaml:"enabled"`
	CredentialsFile string   `yaml:"credentials_file"`
	Profiles        []string `yaml:"profiles,omitempty"`
	SkipProfiles    []string `yaml:"skip_profiles,omitempty"`
	Regions         []string `yaml:"regions,omitempty"`
	ExcludeRegions  []string `yaml:"exclude_regions,omitempty"`
}

// Kubernetes selects the kubeconfig contexts to collect.
type Kubernetes struct {
	Enabled    bool     `yaml:"enabled"`
	Kubeconfig string   `yaml:"kubeconfig"`
	Contexts   []string `yaml:"contexts,omitempty"`
}

// Engine holds the fan-out and retry knobs.
type Engine struct {
	GlobalConcurrency     int           `yaml:"global_concurrency"`
	PerBackendConcurrency int           `yaml:"per_backend_concurrency"`
	PerUnitTimeout        time.Duration `yaml:"per_unit_timeout"`
	MaxRetries            int           `yaml:"max_retries"`
	MaxPages              int           `yaml:"max_pages"`
	// RequestsPerSecond paces page fetches per backend; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Daemon configures interval collection mode.
type Daemon struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// Storage configures the on-disk report archive.
type Storage struct {
	Dir string `yaml:"dir"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Load reads, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given: both
// backends enabled with their ambient credential material.
func Default() *Config {
	cfg := &Config{
		Version:    "1",
		AWS:        AWS{Enabled: true},
		Kubernetes: Kubernetes{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	home, _ := os.UserHomeDir()

	if c.Version == "" {
		c.Version = "1"
	}
	if c.AWS.CredentialsFile == "" {
		c.AWS.CredentialsFile = filepath.Join(home, ".aws", "credentials")
	}
	if c.AWS.SkipProfiles == nil {
		c.AWS.SkipProfiles = DefaultSkipProfiles
	}
	if len(c.AWS.Regions) == 0 {
		c.AWS.Regions = excludeFrom(DefaultRegions, c.AWS.ExcludeRegions)
	} else {
		c.AWS.Regions = excludeFrom(c.AWS.Regions, c.AWS.ExcludeRegions)
	}
	if c.Kubernetes.Kubeconfig == "" {
		c.Kubernetes.Kubeconfig = filepath.Join(home, ".kube", "config")
	}
	if c.Daemon.Interval <= 0 {
		c.Daemon.Interval = time.Hour
	}
	if c.Daemon.MetricsAddr == "" {
		c.Daemon.MetricsAddr = ":9090"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(home, ".kera")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	// Engine zero values fall through to the engine package defaults.
}

// Validate ensures the config is internally consistent.
func (c *Config) Validate() error {
	if c.Version != "1" {
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	if !c.AWS.Enabled && !c.Kubernetes.Enabled {
		return fmt.Errorf("at least one backend must be enabled")
	}
	if c.Engine.GlobalConcurrency < 0 || c.Engine.PerBackendConcurrency < 0 {
		return fmt.Errorf("concurrency limits must not be negative")
	}
	if c.Engine.PerUnitTimeout < 0 {
		return fmt.Errorf("per_unit_timeout must not be negative")
	}
	if c.Engine.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

func excludeFrom(regions, excluded []string) []string {
	if len(excluded) == 0 {
		return regions
	}
	skip := make(map[string]bool, len(excluded))
	for _, r := range excluded {
		skip[r] = true
	}
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if !skip[r] {
			out = append(out, r)
		}
	}
	return out
}
