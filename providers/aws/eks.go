package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

const (
	// KindEKSCluster is the normalized kind for EKS clusters.
	KindEKSCluster = "aws/eks-cluster"
	// KindEKSNodegroup is the normalized kind for EKS managed nodegroups.
	KindEKSNodegroup = "aws/eks-nodegroup"
)

// ClusterType returns the resource type for EKS clusters.
func ClusterType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindEKSCluster,
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch:     fetchClusters,
		Map:       mapCluster,
	}
}

// NodegroupType returns the resource type for EKS managed nodegroups. It
// walks every cluster in the target, so it is complete-list-only: one fetch
// returns everything.
func NodegroupType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindEKSNodegroup,
		Backend:   types.BackendAWS,
		Paginated: false,
		Fetch:     fetchNodegroups,
		Map:       mapNodegroup,
	}
}

func fetchClusters(ctx context.Context, target types.Target, cursor string) (providers.Page, error) {
	c, err := clientsFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	input := &eks.ListClustersInput{}
	if cursor != "" {
		input.NextToken = awssdk.String(cursor)
	}

	out, err := c.EKS.ListClusters(ctx, input)
	if err != nil {
		return providers.Page{}, classify(err)
	}

	page := providers.Page{NextCursor: awssdk.ToString(out.NextToken)}
	for _, name := range out.Clusters {
		describe, err := c.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: awssdk.String(name)})
		if err != nil {
			return providers.Page{}, classify(err)
		}
		if describe.Cluster != nil {
			page.Records = append(page.Records, *describe.Cluster)
		}
	}
	return page, nil
}

func mapCluster(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	cluster, ok := raw.(ekstypes.Cluster)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected ekstypes.Cluster, got %T", raw)
	}
	if cluster.Arn == nil {
		return types.Resource{}, fmt.Errorf("cluster without ARN")
	}

	attrs := map[string]string{
		"status": string(cluster.Status),
	}
	if cluster.Version != nil {
		attrs["version"] = awssdk.ToString(cluster.Version)
	}

	return types.Resource{
		Kind:   KindEKSCluster,
		Target: target.Label,
		ID:     awssdk.ToString(cluster.Arn),
		Name:   awssdk.ToString(cluster.Name),
		Region: regionOf(target),
		Attrs:  attrs,
	}, nil
}

func fetchNodegroups(ctx context.Context, target types.Target, _ string) (providers.Page, error) {
	c, err := clientsFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	var page providers.Page
	var clusterCursor *string
	for {
		clusters, err := c.EKS.ListClusters(ctx, &eks.ListClustersInput{NextToken: clusterCursor})
		if err != nil {
			return providers.Page{}, classify(err)
		}

		for _, clusterName := range clusters.Clusters {
			records, err := nodegroupsOf(ctx, c, clusterName)
			if err != nil {
				return providers.Page{}, err
			}
			page.Records = append(page.Records, records...)
		}

		if clusters.NextToken == nil {
			return page, nil
		}
		clusterCursor = clusters.NextToken
	}
}

func nodegroupsOf(ctx context.Context, c *Clients, clusterName string) ([]providers.RawRecord, error) {
	var records []providers.RawRecord
	var cursor *string
	for {
		out, err := c.EKS.ListNodegroups(ctx, &eks.ListNodegroupsInput{
			ClusterName: awssdk.String(clusterName),
			NextToken:   cursor,
		})
		if err != nil {
			return nil, classify(err)
		}

		for _, name := range out.Nodegroups {
			describe, err := c.EKS.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
				ClusterName:   awssdk.String(clusterName),
				NodegroupName: awssdk.String(name),
			})
			if err != nil {
				return nil, classify(err)
			}
			if describe.Nodegroup != nil {
				records = append(records, *describe.Nodegroup)
			}
		}

		if out.NextToken == nil {
			return records, nil
		}
		cursor = out.NextToken
	}
}

func mapNodegroup(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	ng, ok := raw.(ekstypes.Nodegroup)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected ekstypes.Nodegroup, got %T", raw)
	}
	if ng.NodegroupArn == nil {
		return types.Resource{}, fmt.Errorf("nodegroup without ARN")
	}

	attrs := map[string]string{
		"cluster": awssdk.ToString(ng.ClusterName),
		"status":  string(ng.Status),
	}
	if ng.ScalingConfig != nil && ng.ScalingConfig.DesiredSize != nil {
		attrs["desired_size"] = strconv.Itoa(int(*ng.ScalingConfig.DesiredSize))
	}
	if ng.Resources != nil && len(ng.Resources.AutoScalingGroups) > 0 {
		names := make([]string, 0, len(ng.Resources.AutoScalingGroups))
		for _, asg := range ng.Resources.AutoScalingGroups {
			names = append(names, awssdk.ToString(asg.Name))
		}
		attrs["autoscaling_groups"] = strings.Join(names, ",")
	}

	return types.Resource{
		Kind:   KindEKSNodegroup,
		Target: target.Label,
		ID:     awssdk.ToString(ng.NodegroupArn),
		Name:   awssdk.ToString(ng.NodegroupName),
		Region: regionOf(target),
		Attrs:  attrs,
	}, nil
}
