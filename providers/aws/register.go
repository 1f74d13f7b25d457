package aws

import "github.com/yairfalse/kera/providers"

func init() {
	providers.Register(InstanceType())
	providers.Register(ClusterType())
	providers.Register(NodegroupType())
	providers.Register(DBInstanceType())
	providers.Register(BucketType())
}
