package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// KindPod is the normalized kind for pods.
const KindPod = "kubernetes/pod"

// pageSize bounds one List call against the API server.
const pageSize = 500

// PodType returns the resource type for pods across all namespaces.
func PodType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindPod,
		Backend:   types.BackendKubernetes,
		Paginated: true,
		Fetch:     fetchPods,
		Map:       mapPod,
	}
}

func fetchPods(ctx context.Context, target types.Target, cursor string) (providers.Page, error) {
	c, err := clusterFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	list, err := c.Client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		Limit:    pageSize,
		Continue: cursor,
	})
	if err != nil {
		return providers.Page{}, classify(err)
	}

	page := providers.Page{NextCursor: list.Continue}
	for _, pod := range list.Items {
		page.Records = append(page.Records, pod)
	}
	return page, nil
}

func mapPod(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	pod, ok := raw.(corev1.Pod)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected corev1.Pod, got %T", raw)
	}
	if pod.UID == "" {
		return types.Resource{}, fmt.Errorf("pod %s/%s without UID", pod.Namespace, pod.Name)
	}

	attrs := map[string]string{
		"phase": string(pod.Status.Phase),
	}
	if pod.Spec.NodeName != "" {
		attrs["node"] = pod.Spec.NodeName
	}

	return types.Resource{
		Kind:   KindPod,
		Target: target.Label,
		ID:     string(pod.UID),
		Name:   pod.Name,
		Region: pod.Namespace,
		Attrs:  attrs,
	}, nil
}
