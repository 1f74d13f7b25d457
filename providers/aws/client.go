// Package aws implements the AWS resource types for kera. One Clients
// bundle per account/region target; resource types fetch through narrow
// service interfaces so tests can substitute fakes.
package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/ini.v1"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// EC2API is the subset of the EC2 client used by the instance type.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// EKSAPI is the subset of the EKS client used by the cluster and nodegroup types.
type EKSAPI interface {
	ListClusters(ctx context.Context, params *eks.ListClustersInput, optFns ...func(*eks.Options)) (*eks.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
	ListNodegroups(ctx context.Context, params *eks.ListNodegroupsInput, optFns ...func(*eks.Options)) (*eks.ListNodegroupsOutput, error)
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
}

// RDSAPI is the subset of the RDS client used by the database instance type.
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// S3API is the subset of the S3 client used by the bucket type.
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// Clients bundles the authenticated service clients for one account/region
// target. It is the opaque handle carried by AWS targets.
type Clients struct {
	Profile string
	Region  string

	EC2 EC2API
	EKS EKSAPI
	RDS RDSAPI
	S3  S3API
}

// NewClients resolves credentials for the given shared-config profile and
// builds the service clients for one region.
func NewClients(ctx context.Context, profile, region string) (*Clients, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for profile %q region %q: %w", profile, region, err)
	}

	return &Clients{
		Profile: profile,
		Region:  region,
		EC2:     ec2.NewFromConfig(cfg),
		EKS:     eks.NewFromConfig(cfg),
		RDS:     rds.NewFromConfig(cfg),
		S3:      s3.NewFromConfig(cfg),
	}, nil
}

// Profiles returns the profile names found in a shared credentials file,
// minus the skip list. Names come back sorted.
func Profiles(path string, skip []string) ([]string, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load credentials file %s: %w", path, err)
	}

	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}

	var names []string
	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection || skipSet[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// clientsFor unwraps the AWS handle from a target. A wrong handle type is a
// wiring bug, reported as non-retryable so the unit fails fast.
func clientsFor(target types.Target) (*Clients, error) {
	c, ok := target.Handle.(*Clients)
	if !ok {
		return nil, &providers.BackendError{
			Kind: providers.ErrNonRetryable,
			Err:  fmt.Errorf("target %s: handle is %T, want *aws.Clients", target.Label, target.Handle),
		}
	}
	return c, nil
}
