package main

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/kera/config"
	awsprov "github.com/yairfalse/kera/providers/aws"
	"github.com/yairfalse/kera/providers/kube"
	"github.com/yairfalse/kera/targets"
	"github.com/yairfalse/kera/telemetry"
)

// buildHandles resolves credential material for every configured target.
// Targets that fail to authenticate are skipped with a warning so one bad
// profile or context cannot block the rest of the run.
func buildHandles(ctx context.Context, cfg *config.Config) (targets.Handles, error) {
	handles := targets.Handles{
		AWS:        map[string]any{},
		Kubernetes: map[string]any{},
	}
	logger := telemetry.NewLogger("bootstrap")

	if cfg.AWS.Enabled {
		if err := buildAWSHandles(ctx, cfg, &handles, logger); err != nil {
			return handles, err
		}
	}
	if cfg.Kubernetes.Enabled {
		buildKubeHandles(cfg, &handles, logger)
	}
	return handles, nil
}

func buildAWSHandles(ctx context.Context, cfg *config.Config, handles *targets.Handles, logger *telemetry.Logger) error {
	profiles := cfg.AWS.Profiles
	if len(profiles) == 0 {
		var err error
		profiles, err = awsprov.Profiles(cfg.AWS.CredentialsFile, cfg.AWS.SkipProfiles)
		if err != nil {
			return fmt.Errorf("failed to enumerate AWS profiles: %w", err)
		}
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)

	for _, profile := range profiles {
		for _, region := range cfg.AWS.Regions {
			profile, region := profile, region
			group.Go(func() error {
				clients, err := awsprov.NewClients(groupCtx, profile, region)
				if err != nil {
					logger.Warn().
						Err(err).
						Str("profile", profile).
						Str("region", region).
						Msg("skipping AWS target, client setup failed")
					return nil
				}
				mu.Lock()
				handles.AWS[profile+"/"+region] = clients
				mu.Unlock()
				return nil
			})
		}
	}
	return group.Wait()
}

func buildKubeHandles(cfg *config.Config, handles *targets.Handles, logger *telemetry.Logger) {
	contexts := cfg.Kubernetes.Contexts
	if len(contexts) == 0 {
		var err error
		contexts, err = kube.Contexts(cfg.Kubernetes.Kubeconfig)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("kubeconfig", cfg.Kubernetes.Kubeconfig).
				Msg("no kubeconfig contexts resolved")
			return
		}
	}

	for _, kubeContext := range contexts {
		cluster, err := kube.ClientFor(cfg.Kubernetes.Kubeconfig, kubeContext)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("context", kubeContext).
				Msg("skipping Kubernetes target, client setup failed")
			continue
		}
		handles.Kubernetes[kubeContext] = cluster
	}
}
