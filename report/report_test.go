package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kera/engine"
	"github.com/yairfalse/kera/types"
)

func outcome(label, kind string, resources ...types.Resource) engine.Outcome {
	return engine.Outcome{
		Target:             types.Target{Backend: types.BackendAWS, Label: label},
		Kind:               kind,
		Resources:          resources,
		Pages:              1,
		PaginationComplete: true,
	}
}

func res(kind, id string) types.Resource {
	return types.Resource{Kind: kind, ID: id, Name: id}
}

func TestBuild_DeduplicatesAcrossOutcomes(t *testing.T) {
	// The same bucket shows up in two regional listings; only one copy
	// survives and the removal is counted per kind.
	outcomes := []engine.Outcome{
		outcome("prod/us-east-1", "aws/s3-bucket", res("aws/s3-bucket", "assets"), res("aws/s3-bucket", "logs")),
		outcome("prod/us-west-2", "aws/s3-bucket", res("aws/s3-bucket", "assets")),
	}

	report := Build(time.Now(), outcomes)
	assert.Len(t, report.Resources, 2)
	assert.Equal(t, 2, report.Summary.Resources)
	assert.Equal(t, 1, report.Summary.DuplicatesRemoved["aws/s3-bucket"])
	assert.Equal(t, 1, report.Summary.DuplicatesRemovedN)
	assert.NotEmpty(t, report.RunID)
}

func TestBuild_DedupIsIdempotent(t *testing.T) {
	outcomes := []engine.Outcome{
		outcome("prod/us-east-1", "aws/thing", res("aws/thing", "a"), res("aws/thing", "b")),
		outcome("prod/us-west-2", "aws/thing", res("aws/thing", "a")),
	}

	first := Build(time.Now(), outcomes)

	// Feed the deduplicated list back through: nothing further collapses.
	again := Build(time.Now(), []engine.Outcome{
		outcome("prod/us-east-1", "aws/thing", first.Resources...),
	})
	require.Len(t, again.Resources, len(first.Resources))
	for i := range first.Resources {
		assert.Equal(t, first.Resources[i].IdentityKey(), again.Resources[i].IdentityKey())
	}
	assert.Zero(t, again.Summary.DuplicatesRemovedN)
}

func TestBuild_AllUnitsFailed(t *testing.T) {
	outcomes := []engine.Outcome{
		{
			Target:  types.Target{Backend: types.BackendAWS, Label: "prod/us-east-1"},
			Kind:    "aws/thing",
			Failure: &engine.Failure{Kind: engine.FailNonRetryable, Message: "AccessDenied"},
		},
		{
			Target:  types.Target{Backend: types.BackendKubernetes, Label: "staging"},
			Kind:    "k8s/pod",
			Failure: &engine.Failure{Kind: engine.FailTimeout, Message: "deadline"},
		},
	}

	report := Build(time.Now(), outcomes)
	assert.Empty(t, report.Resources)
	require.Len(t, report.Statuses, 2)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Timeout)
	assert.Equal(t, 0, report.Summary.Complete)
}

func TestBuild_StatusTableSortedAndAnnotated(t *testing.T) {
	good := outcome("zeta/eu-west-1", "aws/thing", res("aws/thing", "z"))
	good.MappingWarnings = 2
	outcomes := []engine.Outcome{
		good,
		{
			Target:  types.Target{Backend: types.BackendAWS, Label: "alpha/us-east-1"},
			Kind:    "aws/thing",
			Failure: &engine.Failure{Kind: engine.FailCancelled, Message: "run cancelled before dispatch"},
		},
	}

	report := Build(time.Now(), outcomes)
	require.Len(t, report.Statuses, 2)
	assert.Equal(t, "alpha/us-east-1", report.Statuses[0].Target)
	assert.Equal(t, "Cancelled", report.Statuses[0].Status)
	assert.Equal(t, "run cancelled before dispatch", report.Statuses[0].Reason)
	assert.Equal(t, "Complete", report.Statuses[1].Status)
	assert.Equal(t, 2, report.Summary.MappingWarnings)
}
