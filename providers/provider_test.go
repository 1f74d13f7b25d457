package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yairfalse/kera/types"
)

func TestRegistry(t *testing.T) {
	Clear()
	defer Clear()

	Register(ResourceType{Kind: "aws/ec2-instance", Backend: types.BackendAWS})
	Register(ResourceType{Kind: "kubernetes/pod", Backend: types.BackendKubernetes})
	Register(ResourceType{Kind: "aws/s3-bucket", Backend: types.BackendAWS})

	rt, ok := Get("kubernetes/pod")
	assert.True(t, ok)
	assert.Equal(t, types.BackendKubernetes, rt.Backend)

	_, ok = Get("aws/unknown")
	assert.False(t, ok)

	all := All()
	assert.Len(t, all, 3)
	// Sorted by kind for deterministic iteration.
	assert.Equal(t, "aws/ec2-instance", all[0].Kind)
	assert.Equal(t, "aws/s3-bucket", all[1].Kind)
	assert.Equal(t, "kubernetes/pod", all[2].Kind)
}

func TestRegistry_ReplaceSameKind(t *testing.T) {
	Clear()
	defer Clear()

	Register(ResourceType{Kind: "aws/ec2-instance", Paginated: false})
	Register(ResourceType{Kind: "aws/ec2-instance", Paginated: true})

	rt, ok := Get("aws/ec2-instance")
	assert.True(t, ok)
	assert.True(t, rt.Paginated)
	assert.Len(t, All(), 1)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "throttled",
			err:  &BackendError{Kind: ErrThrottled, Err: errors.New("rate exceeded")},
			want: ErrThrottled,
		},
		{
			name: "non retryable",
			err:  &BackendError{Kind: ErrNonRetryable, Err: errors.New("access denied")},
			want: ErrNonRetryable,
		},
		{
			name: "wrapped classification survives",
			err:  fmt.Errorf("fetch page: %w", &BackendError{Kind: ErrNonRetryable, Err: errors.New("denied")}),
			want: ErrNonRetryable,
		},
		{
			name: "unclassified defaults to transient",
			err:  errors.New("connection reset"),
			want: ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &BackendError{Kind: ErrTransient, Err: inner}
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "boom")
}
