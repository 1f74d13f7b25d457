// Package kube implements the Kubernetes resource types for kera. One
// Cluster handle per kubeconfig context; resource types list through the
// kubernetes.Interface so tests can substitute the fake clientset.
package kube

import (
	"fmt"
	"sort"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// Cluster is the opaque handle carried by Kubernetes targets.
type Cluster struct {
	Context string
	Client  kubernetes.Interface
}

// Contexts returns the context names defined in the kubeconfig, sorted.
// An empty path uses the default loading rules (KUBECONFIG, ~/.kube/config).
func Contexts(kubeconfig string) ([]string, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}

	cfg, err := rules.Load()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}

	names := make([]string, 0, len(cfg.Contexts))
	for name := range cfg.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ClientFor builds a clientset for one kubeconfig context.
func ClientFor(kubeconfig, context string) (*Cluster, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules,
		&clientcmd.ConfigOverrides{CurrentContext: context},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build config for context %q: %w", context, err)
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client for context %q: %w", context, err)
	}

	return &Cluster{Context: context, Client: client}, nil
}

// clusterFor unwraps the Kubernetes handle from a target.
func clusterFor(target types.Target) (*Cluster, error) {
	c, ok := target.Handle.(*Cluster)
	if !ok {
		return nil, &providers.BackendError{
			Kind: providers.ErrNonRetryable,
			Err:  fmt.Errorf("target %s: handle is %T, want *kube.Cluster", target.Label, target.Handle),
		}
	}
	return c, nil
}
