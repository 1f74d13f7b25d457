package aws

import (
	"context"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// fakeEC2 pages through canned reservations, keyed by cursor.
type fakeEC2 struct {
	pages map[string]*ec2.DescribeInstancesOutput
	err   error
}

func (f *fakeEC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[awssdk.ToString(params.NextToken)], nil
}

func awsTarget(c *Clients) types.Target {
	return types.Target{Backend: types.BackendAWS, Label: c.Profile + "/" + c.Region, Handle: c}
}

func instance(id, name, state string) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:   awssdk.String(id),
		InstanceType: ec2types.InstanceTypeT3Micro,
		State:        &ec2types.InstanceState{Name: ec2types.InstanceStateName(state)},
		Tags:         []ec2types.Tag{{Key: awssdk.String("Name"), Value: awssdk.String(name)}},
	}
}

func TestFetchInstances_Pagination(t *testing.T) {
	fake := &fakeEC2{pages: map[string]*ec2.DescribeInstancesOutput{
		"": {
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{instance("i-1", "web", "running")}}},
			NextToken:    awssdk.String("page2"),
		},
		"page2": {
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{instance("i-2", "db", "stopped")}}},
		},
	}}
	target := awsTarget(&Clients{Profile: "prod", Region: "us-east-1", EC2: fake})

	first, err := fetchInstances(context.Background(), target, "")
	require.NoError(t, err)
	assert.Len(t, first.Records, 1)
	assert.Equal(t, "page2", first.NextCursor)

	second, err := fetchInstances(context.Background(), target, first.NextCursor)
	require.NoError(t, err)
	assert.Len(t, second.Records, 1)
	assert.Empty(t, second.NextCursor)
}

func TestFetchInstances_AccessDenied(t *testing.T) {
	fake := &fakeEC2{err: &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "no"}}
	target := awsTarget(&Clients{Profile: "prod", Region: "us-east-1", EC2: fake})

	_, err := fetchInstances(context.Background(), target, "")
	require.Error(t, err)
	assert.Equal(t, providers.ErrNonRetryable, providers.KindOf(err))
}

func TestMapInstance(t *testing.T) {
	target := awsTarget(&Clients{Profile: "prod", Region: "eu-west-1"})

	r, err := mapInstance(target, instance("i-0abc", "web-1", "running"))
	require.NoError(t, err)
	assert.Equal(t, KindEC2Instance, r.Kind)
	assert.Equal(t, "i-0abc", r.ID)
	assert.Equal(t, "web-1", r.Name)
	assert.Equal(t, "prod/eu-west-1", r.Target)
	assert.Equal(t, "eu-west-1", r.Region)
	assert.Equal(t, "running", r.Attrs["state"])
	assert.Equal(t, "t3.micro", r.Attrs["instance_type"])
}

func TestMapInstance_BadRecord(t *testing.T) {
	target := awsTarget(&Clients{Profile: "prod", Region: "eu-west-1"})

	_, err := mapInstance(target, "not an instance")
	assert.Error(t, err)

	_, err = mapInstance(target, ec2types.Instance{})
	assert.Error(t, err)
}
