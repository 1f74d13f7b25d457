package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// KindNode is the normalized kind for cluster nodes.
const KindNode = "kubernetes/node"

// NodeType returns the resource type for cluster nodes.
func NodeType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindNode,
		Backend:   types.BackendKubernetes,
		Paginated: true,
		Fetch:     fetchNodes,
		Map:       mapNode,
	}
}

func fetchNodes(ctx context.Context, target types.Target, cursor string) (providers.Page, error) {
	c, err := clusterFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	list, err := c.Client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
		Limit:    pageSize,
		Continue: cursor,
	})
	if err != nil {
		return providers.Page{}, classify(err)
	}

	page := providers.Page{NextCursor: list.Continue}
	for _, node := range list.Items {
		page.Records = append(page.Records, node)
	}
	return page, nil
}

func mapNode(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	node, ok := raw.(corev1.Node)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected corev1.Node, got %T", raw)
	}
	if node.UID == "" {
		return types.Resource{}, fmt.Errorf("node %s without UID", node.Name)
	}

	attrs := map[string]string{
		"kubelet_version": node.Status.NodeInfo.KubeletVersion,
		"os_image":        node.Status.NodeInfo.OSImage,
	}
	if instanceType := node.Labels["node.kubernetes.io/instance-type"]; instanceType != "" {
		attrs["instance_type"] = instanceType
	}

	return types.Resource{
		Kind:   KindNode,
		Target: target.Label,
		ID:     string(node.UID),
		Name:   node.Name,
		Attrs:  attrs,
	}, nil
}
