package roadmap

import (
	"encoding/json"
	"fmt"
)

// Priority is the tier a task is grouped under.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	// PriorityV2 marks future work. Tasks in this tier are excluded from progress statistics.
	PriorityV2 Priority = "V2"
)

// AllPriorities returns every tier in display order.
func AllPriorities() []Priority {
	return []Priority{PriorityP1, PriorityP2, PriorityP3, PriorityV2}
}

// IsValid returns true if the priority is one of the known tiers.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityP1, PriorityP2, PriorityP3, PriorityV2:
		return true
	default:
		return false
	}
}

// InScope reports whether tasks of this tier count towards progress.
func (p Priority) InScope() bool {
	return p != PriorityV2
}

func (p Priority) String() string {
	return string(p)
}

// DisplayName returns the section heading used by the views.
func (p Priority) DisplayName() string {
	switch p {
	case PriorityP1:
		return "P1 - Core (MVP)"
	case PriorityP2:
		return "P2 - Retention & Social"
	case PriorityP3:
		return "P3 - Advanced & Data"
	case PriorityV2:
		return "V2 - Future (out of scope)"
	default:
		return string(p)
	}
}

// ParsePriority parses a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid priority: %s", s)
	}
	return p, nil
}

// UnmarshalJSON keeps unknown tiers as-is. Imported snapshots are only
// validated at the top level, so an odd tier must not fail the whole decode.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*p = Priority(str)
	return nil
}
