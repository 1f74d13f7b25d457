// Package targets builds the closed set of collection targets for a run.
//
// Credential resolution happens elsewhere (CLI bootstrap): this package only
// accepts already-authenticated handles keyed by label and turns them into a
// deterministic, sorted target list.
package targets

import (
	"sort"

	"github.com/yairfalse/kera/telemetry"
	"github.com/yairfalse/kera/types"
)

// ConfigurationError means no targets resolved at all. It is the only error
// that aborts a run before any work is dispatched.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "target configuration: " + e.Reason
}

// Handles carries the resolved per-backend credential material, keyed by
// target label (AWS: "profile/region", Kubernetes: context name). Values are
// opaque to the registry; the backend's resource types unwrap them.
type Handles struct {
	AWS        map[string]any
	Kubernetes map[string]any
}

// Resolve produces the run's target set. Both backends empty is fatal;
// one backend empty alone is a warning, partial coverage is allowed.
func Resolve(handles Handles) ([]types.Target, error) {
	if len(handles.AWS) == 0 && len(handles.Kubernetes) == 0 {
		return nil, &ConfigurationError{Reason: "no AWS targets and no Kubernetes targets resolved"}
	}

	logger := telemetry.NewLogger("targets")
	if len(handles.AWS) == 0 {
		logger.Warn().Msg("no AWS targets resolved, collecting Kubernetes only")
	}
	if len(handles.Kubernetes) == 0 {
		logger.Warn().Msg("no Kubernetes targets resolved, collecting AWS only")
	}

	out := make([]types.Target, 0, len(handles.AWS)+len(handles.Kubernetes))
	out = append(out, backendTargets(types.BackendAWS, handles.AWS)...)
	out = append(out, backendTargets(types.BackendKubernetes, handles.Kubernetes)...)

	sort.Slice(out, func(i, j int) bool {
		if out[i].Backend != out[j].Backend {
			return out[i].Backend < out[j].Backend
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func backendTargets(backend types.BackendKind, handles map[string]any) []types.Target {
	out := make([]types.Target, 0, len(handles))
	for label, handle := range handles {
		out = append(out, types.Target{
			Backend: backend,
			Label:   label,
			Handle:  handle,
		})
	}
	return out
}
