// Package providers defines the backend capability interface for kera:
// "list resources of type T for target X with pagination". Every backend
// (AWS account/region, Kubernetes cluster context) implements the same
// contract, so nothing above this package branches on backend kind.
package providers

import (
	"context"
	"sort"
	"sync"

	"github.com/yairfalse/kera/types"
)

// RawRecord is a single resource observation as returned by a backend call,
// opaque until mapped into the normalized schema.
type RawRecord any

// Page is one page of raw records from a backend list call. NextCursor is
// empty when the backend has no further pages.
type Page struct {
	Records    []RawRecord
	NextCursor string
}

// FetchFunc performs one paginated list call against a target. The cursor is
// the continuation token from the prior page, empty for the first page.
// This is the sole I/O boundary of the collection engine.
type FetchFunc func(ctx context.Context, target types.Target, cursor string) (Page, error)

// MapFunc normalizes one raw record. A mapping error drops the record with a
// counted warning; it never fails the listing.
type MapFunc func(target types.Target, raw RawRecord) (types.Resource, error)

// ResourceType describes one listable resource kind within a backend kind,
// its pagination contract, and its mapping into the normalized schema.
// Static configuration, registered once at startup.
type ResourceType struct {
	// Kind names the resource type, e.g. "aws/ec2-instance".
	Kind string

	// Backend selects which targets this type applies to.
	Backend types.BackendKind

	// Paginated is false when the backend returns the complete list in a
	// single call and cursors are meaningless.
	Paginated bool

	Fetch FetchFunc
	Map   MapFunc
}

var (
	mu       sync.RWMutex
	registry = make(map[string]ResourceType)
)

// Register adds a resource type to the registry. Later registrations with
// the same kind replace earlier ones.
func Register(rt ResourceType) {
	mu.Lock()
	defer mu.Unlock()
	registry[rt.Kind] = rt
}

// Get returns a registered resource type by kind.
func Get(kind string) (ResourceType, bool) {
	mu.RLock()
	defer mu.RUnlock()
	rt, ok := registry[kind]
	return rt, ok
}

// All returns every registered resource type, sorted by kind.
func All() []ResourceType {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]ResourceType, 0, len(registry))
	for _, rt := range registry {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Clear removes all registered resource types. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]ResourceType)
}
