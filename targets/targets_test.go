package targets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kera/types"
)

func TestResolve_BothBackendsEmpty(t *testing.T) {
	_, err := Resolve(Handles{})

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Error(), "no AWS targets")
}

func TestResolve_OneBackendEmptyIsNotFatal(t *testing.T) {
	got, err := Resolve(Handles{
		AWS: map[string]any{"prod/us-east-1": "h1"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.BackendAWS, got[0].Backend)
	assert.Equal(t, "prod/us-east-1", got[0].Label)
	assert.Equal(t, "h1", got[0].Handle)
}

func TestResolve_SortedAcrossBackends(t *testing.T) {
	got, err := Resolve(Handles{
		AWS: map[string]any{
			"prod/us-west-2": "h2",
			"prod/us-east-1": "h1",
		},
		Kubernetes: map[string]any{
			"staging": "k1",
			"prod":    "k2",
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	labels := make([]string, 0, len(got))
	for _, tgt := range got {
		labels = append(labels, string(tgt.Backend)+":"+tgt.Label)
	}
	assert.Equal(t, []string{
		"aws:prod/us-east-1",
		"aws:prod/us-west-2",
		"kubernetes:prod",
		"kubernetes:staging",
	}, labels)
}
