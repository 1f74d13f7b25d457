package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// KindEC2Instance is the normalized kind for EC2 instances.
const KindEC2Instance = "aws/ec2-instance"

// InstanceType returns the resource type for EC2 instances.
func InstanceType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindEC2Instance,
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch:     fetchInstances,
		Map:       mapInstance,
	}
}

func fetchInstances(ctx context.Context, target types.Target, cursor string) (providers.Page, error) {
	c, err := clientsFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	input := &ec2.DescribeInstancesInput{}
	if cursor != "" {
		input.NextToken = awssdk.String(cursor)
	}

	out, err := c.EC2.DescribeInstances(ctx, input)
	if err != nil {
		return providers.Page{}, classify(err)
	}

	page := providers.Page{NextCursor: awssdk.ToString(out.NextToken)}
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			page.Records = append(page.Records, instance)
		}
	}
	return page, nil
}

func mapInstance(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	instance, ok := raw.(ec2types.Instance)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected ec2types.Instance, got %T", raw)
	}
	if instance.InstanceId == nil {
		return types.Resource{}, fmt.Errorf("instance without InstanceId")
	}

	attrs := map[string]string{
		"instance_type": string(instance.InstanceType),
	}
	if instance.State != nil {
		attrs["state"] = string(instance.State.Name)
	}
	if instance.Placement != nil {
		attrs["availability_zone"] = awssdk.ToString(instance.Placement.AvailabilityZone)
	}

	return types.Resource{
		Kind:   KindEC2Instance,
		Target: target.Label,
		ID:     awssdk.ToString(instance.InstanceId),
		Name:   tagValue(instance.Tags, "Name"),
		Region: regionOf(target),
		Attrs:  attrs,
	}, nil
}

func tagValue(tags []ec2types.Tag, key string) string {
	for _, tag := range tags {
		if awssdk.ToString(tag.Key) == key {
			return awssdk.ToString(tag.Value)
		}
	}
	return ""
}

func regionOf(target types.Target) string {
	if c, ok := target.Handle.(*Clients); ok {
		return c.Region
	}
	return ""
}
