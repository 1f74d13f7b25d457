package types

// BackendKind identifies which backend family a target belongs to.
type BackendKind string

const (
	BackendAWS        BackendKind = "aws"
	BackendKubernetes BackendKind = "kubernetes"
)

// Target identifies one collection endpoint for a single run: an AWS
// account+region pair or a Kubernetes cluster context. Handle carries the
// already-authenticated client material for the target's backend; the
// collection engine never inspects it, only hands it to the matching
// resource type's fetcher. Targets are immutable once constructed.
type Target struct {
	Backend BackendKind
	Label   string
	Handle  any
}
