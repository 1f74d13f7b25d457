package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// KindNamespace is the normalized kind for namespaces.
const KindNamespace = "kubernetes/namespace"

// NamespaceType returns the resource type for namespaces.
func NamespaceType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindNamespace,
		Backend:   types.BackendKubernetes,
		Paginated: true,
		Fetch:     fetchNamespaces,
		Map:       mapNamespace,
	}
}

func fetchNamespaces(ctx context.Context, target types.Target, cursor string) (providers.Page, error) {
	c, err := clusterFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	list, err := c.Client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{
		Limit:    pageSize,
		Continue: cursor,
	})
	if err != nil {
		return providers.Page{}, classify(err)
	}

	page := providers.Page{NextCursor: list.Continue}
	for _, ns := range list.Items {
		page.Records = append(page.Records, ns)
	}
	return page, nil
}

func mapNamespace(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	ns, ok := raw.(corev1.Namespace)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected corev1.Namespace, got %T", raw)
	}
	if ns.UID == "" {
		return types.Resource{}, fmt.Errorf("namespace %s without UID", ns.Name)
	}

	return types.Resource{
		Kind:   KindNamespace,
		Target: target.Label,
		ID:     string(ns.UID),
		Name:   ns.Name,
		Attrs:  map[string]string{"phase": string(ns.Status.Phase)},
	}, nil
}
