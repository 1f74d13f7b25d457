// Package report merges per-unit outcomes into one inventory report:
// a run-wide deduplicated resource list plus a per-unit status table.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/kera/engine"
	"github.com/yairfalse/kera/types"
)

// UnitStatus is one row of the report's status table.
type UnitStatus struct {
	Target          string        `json:"target"`
	Backend         string        `json:"backend"`
	Kind            string        `json:"kind"`
	Status          string        `json:"status"`
	Resources       int           `json:"resources"`
	Pages           int           `json:"pages"`
	MappingWarnings int           `json:"mapping_warnings,omitempty"`
	Duration        time.Duration `json:"duration"`
	Reason          string        `json:"reason,omitempty"`
}

// Summary holds the run-wide counters.
type Summary struct {
	Units              int            `json:"units"`
	Complete           int            `json:"complete"`
	Partial            int            `json:"partial"`
	Failed             int            `json:"failed"`
	Timeout            int            `json:"timeout"`
	Cancelled          int            `json:"cancelled"`
	Resources          int            `json:"resources"`
	ResourcesByKind    map[string]int `json:"resources_by_kind"`
	DuplicatesRemoved  map[string]int `json:"duplicates_removed,omitempty"`
	MappingWarnings    int            `json:"mapping_warnings"`
	DuplicatesRemovedN int            `json:"duplicates_removed_total"`
}

// InventoryReport is the immutable result of one collection run.
type InventoryReport struct {
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Resources []types.Resource `json:"resources"`
	Statuses  []UnitStatus     `json:"statuses"`
	Summary   Summary          `json:"summary"`
}

// Build assembles the report from all unit outcomes. It never fails: a run
// where every unit failed yields an empty resource list and a status table
// full of failures.
//
// Deduplication collapses resources sharing an identity key across all
// outcomes; the first observation wins and later ones only bump the per-kind
// duplicate counter.
func Build(startedAt time.Time, outcomes []engine.Outcome) *InventoryReport {
	report := &InventoryReport{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Summary: Summary{
			Units:             len(outcomes),
			ResourcesByKind:   make(map[string]int),
			DuplicatesRemoved: make(map[string]int),
		},
	}

	seen := make(map[string]bool)
	for _, outcome := range sortedOutcomes(outcomes) {
		report.Statuses = append(report.Statuses, statusRow(outcome))
		report.count(outcome)

		for _, resource := range outcome.Resources {
			key := resource.IdentityKey()
			if seen[key] {
				report.Summary.DuplicatesRemoved[resource.Kind]++
				report.Summary.DuplicatesRemovedN++
				continue
			}
			seen[key] = true
			report.Resources = append(report.Resources, resource)
			report.Summary.ResourcesByKind[resource.Kind]++
		}
	}
	report.Summary.Resources = len(report.Resources)

	sort.Slice(report.Resources, func(i, j int) bool {
		return report.Resources[i].IdentityKey() < report.Resources[j].IdentityKey()
	})
	return report
}

// sortedOutcomes fixes the outcome order so dedup winners and the status
// table are deterministic regardless of scheduling.
func sortedOutcomes(outcomes []engine.Outcome) []engine.Outcome {
	sorted := make([]engine.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Target.Label != sorted[j].Target.Label {
			return sorted[i].Target.Label < sorted[j].Target.Label
		}
		return sorted[i].Kind < sorted[j].Kind
	})
	return sorted
}

func statusRow(outcome engine.Outcome) UnitStatus {
	row := UnitStatus{
		Target:          outcome.Target.Label,
		Backend:         string(outcome.Target.Backend),
		Kind:            outcome.Kind,
		Status:          outcome.Status(),
		Resources:       len(outcome.Resources),
		Pages:           outcome.Pages,
		MappingWarnings: outcome.MappingWarnings,
		Duration:        outcome.Duration,
	}
	if outcome.Failure != nil {
		row.Reason = outcome.Failure.Message
	}
	return row
}

func (r *InventoryReport) count(outcome engine.Outcome) {
	r.Summary.MappingWarnings += outcome.MappingWarnings
	switch outcome.Status() {
	case "Complete":
		r.Summary.Complete++
	case "PartialPagination":
		r.Summary.Partial++
	case "Timeout":
		r.Summary.Timeout++
	case "Cancelled":
		r.Summary.Cancelled++
	default:
		r.Summary.Failed++
	}
}
