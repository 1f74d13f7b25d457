package types

import "time"

// Resource is the normalized form of one observed resource, shared by every
// backend. Region holds the cloud region for AWS resources and the namespace
// for cluster-scoped ones.
type Resource struct {
	Kind         string            `json:"kind"`
	Target       string            `json:"target"`
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Region       string            `json:"region,omitempty"`
	Attrs        map[string]string `json:"attrs,omitempty"`
	DiscoveredAt time.Time         `json:"discovered_at"`
}

// IdentityKey is the stable key used to collapse repeated observations of
// the same resource across targets. Two resources with the same key are the
// same resource, regardless of which listing they were seen in.
func (r Resource) IdentityKey() string {
	return r.Kind + "/" + r.ID
}

// BuildResourceMap converts a slice of resources to a map keyed by identity
// key for efficient lookup.
func BuildResourceMap(resources []Resource) map[string]Resource {
	m := make(map[string]Resource, len(resources))
	for _, r := range resources {
		m[r.IdentityKey()] = r
	}
	return m
}
