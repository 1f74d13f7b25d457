package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// KindRDSInstance is the normalized kind for RDS database instances.
const KindRDSInstance = "aws/rds-instance"

// DBInstanceType returns the resource type for RDS database instances.
func DBInstanceType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindRDSInstance,
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch:     fetchDBInstances,
		Map:       mapDBInstance,
	}
}

func fetchDBInstances(ctx context.Context, target types.Target, cursor string) (providers.Page, error) {
	c, err := clientsFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	input := &rds.DescribeDBInstancesInput{}
	if cursor != "" {
		input.Marker = awssdk.String(cursor)
	}

	out, err := c.RDS.DescribeDBInstances(ctx, input)
	if err != nil {
		return providers.Page{}, classify(err)
	}

	page := providers.Page{NextCursor: awssdk.ToString(out.Marker)}
	for _, db := range out.DBInstances {
		page.Records = append(page.Records, db)
	}
	return page, nil
}

func mapDBInstance(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	db, ok := raw.(rdstypes.DBInstance)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected rdstypes.DBInstance, got %T", raw)
	}
	if db.DBInstanceArn == nil {
		return types.Resource{}, fmt.Errorf("db instance without ARN")
	}

	attrs := map[string]string{
		"engine": awssdk.ToString(db.Engine),
		"class":  awssdk.ToString(db.DBInstanceClass),
		"status": awssdk.ToString(db.DBInstanceStatus),
	}

	return types.Resource{
		Kind:   KindRDSInstance,
		Target: target.Label,
		ID:     awssdk.ToString(db.DBInstanceArn),
		Name:   awssdk.ToString(db.DBInstanceIdentifier),
		Region: regionOf(target),
		Attrs:  attrs,
	}, nil
}
