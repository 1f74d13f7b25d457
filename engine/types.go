package engine

import (
	"time"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

// WorkUnit is one (target, resource type) listing task.
type WorkUnit struct {
	Target types.Target
	Type   providers.ResourceType
}

// FailureKind classifies a terminal unit failure.
type FailureKind string

const (
	FailNonRetryable FailureKind = "NonRetryable"
	FailTimeout      FailureKind = "Timeout"
	FailCancelled    FailureKind = "Cancelled"
)

// Failure describes why a unit produced no usable result.
type Failure struct {
	Kind             FailureKind `json:"kind"`
	Message          string      `json:"message"`
	RetriesExhausted bool        `json:"retries_exhausted"`
}

// Outcome is the terminal result of one WorkUnit. It is handed off once and
// never mutated afterwards.
type Outcome struct {
	Target             types.Target     `json:"target"`
	Kind               string           `json:"kind"`
	Resources          []types.Resource `json:"resources,omitempty"`
	Pages              int              `json:"pages"`
	PaginationComplete bool             `json:"pagination_complete"`
	MappingWarnings    int              `json:"mapping_warnings"`
	Attempts           int              `json:"attempts"`
	Duration           time.Duration    `json:"duration"`
	Failure            *Failure         `json:"failure,omitempty"`
}

// Status renders the per-unit status for the report table.
func (o Outcome) Status() string {
	if o.Failure != nil {
		switch o.Failure.Kind {
		case FailTimeout:
			return "Timeout"
		case FailCancelled:
			return "Cancelled"
		default:
			return "Failed:" + string(o.Failure.Kind)
		}
	}
	if !o.PaginationComplete {
		return "PartialPagination"
	}
	return "Complete"
}

// Succeeded reports whether the unit produced resources without a failure.
func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}
