package roadmap

import "math"

// Stats summarizes completion over in-scope tasks.
type Stats struct {
	TotalSubtasks     int `json:"totalSubtasks"`
	CompletedSubtasks int `json:"completedSubtasks"`
	Percentage        int `json:"percentage"`
}

// Remaining returns the number of open subtasks.
func (s Stats) Remaining() int {
	return s.TotalSubtasks - s.CompletedSubtasks
}

// DeriveStats counts subtasks across all tasks except the V2 tier.
func DeriveStats(s Snapshot) Stats {
	var st Stats
	for _, t := range s {
		if !t.Priority.InScope() {
			continue
		}
		for _, sub := range t.Subtasks {
			st.TotalSubtasks++
			if sub.Completed {
				st.CompletedSubtasks++
			}
		}
	}
	st.Percentage = percentage(st.CompletedSubtasks, st.TotalSubtasks)
	return st
}

// Stats returns the completion of a single task regardless of its tier.
func (t Task) Stats() Stats {
	var st Stats
	for _, sub := range t.Subtasks {
		st.TotalSubtasks++
		if sub.Completed {
			st.CompletedSubtasks++
		}
	}
	st.Percentage = percentage(st.CompletedSubtasks, st.TotalSubtasks)
	return st
}

func percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
