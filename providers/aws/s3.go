package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// KindS3Bucket is the normalized kind for S3 buckets.
const KindS3Bucket = "aws/s3-bucket"

// BucketType returns the resource type for S3 buckets. ListBuckets returns
// the account's full bucket list in one call, and the same list is visible
// from every region target, so deduplication collapses the copies: bucket
// names are globally unique and serve as the identity key directly.
func BucketType() providers.ResourceType {
	return providers.ResourceType{
		Kind:      KindS3Bucket,
		Backend:   types.BackendAWS,
		Paginated: false,
		Fetch:     fetchBuckets,
		Map:       mapBucket,
	}
}

func fetchBuckets(ctx context.Context, target types.Target, _ string) (providers.Page, error) {
	c, err := clientsFor(target)
	if err != nil {
		return providers.Page{}, err
	}

	out, err := c.S3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return providers.Page{}, classify(err)
	}

	var page providers.Page
	for _, bucket := range out.Buckets {
		page.Records = append(page.Records, bucket)
	}
	return page, nil
}

func mapBucket(target types.Target, raw providers.RawRecord) (types.Resource, error) {
	bucket, ok := raw.(s3types.Bucket)
	if !ok {
		return types.Resource{}, fmt.Errorf("expected s3types.Bucket, got %T", raw)
	}
	if bucket.Name == nil {
		return types.Resource{}, fmt.Errorf("bucket without name")
	}

	r := types.Resource{
		Kind:   KindS3Bucket,
		Target: target.Label,
		ID:     awssdk.ToString(bucket.Name),
		Name:   awssdk.ToString(bucket.Name),
		Region: regionOf(target),
	}
	if bucket.CreationDate != nil {
		r.Attrs = map[string]string{"created": bucket.CreationDate.UTC().Format("2006-01-02")}
	}
	return r, nil
}
