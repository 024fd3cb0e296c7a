// Package events describes the progress milestones an instance reports to
// outgoing webhooks.
package events

import (
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

// Event types.
const (
	TypeProgressChanged = "progress.changed"
	TypeTaskCompleted   = "task.completed"
	TypeTaskReopened    = "task.reopened"
	TypeSyncOffline     = "sync.offline"
	TypeSyncRecovered   = "sync.recovered"
)

// AllTypes lists every event type, for filter validation.
func AllTypes() []string {
	return []string{TypeProgressChanged, TypeTaskCompleted, TypeTaskReopened, TypeSyncOffline, TypeSyncRecovered}
}

// IsValidType reports whether t is a known event type.
func IsValidType(t string) bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one observed milestone. Stats are the overall figures after the change.
type Event struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	TaskID    int           `json:"task_id,omitempty"`
	TaskName  string        `json:"task_name,omitempty"`
	Priority  string        `json:"priority,omitempty"`
	Stats     roadmap.Stats `json:"stats"`
}

// Observation is what an instance saw at one point in time.
type Observation struct {
	Snapshot roadmap.Snapshot
	Offline  bool
}

func taskDone(t roadmap.Task) bool {
	if len(t.Subtasks) == 0 {
		return false
	}
	for _, st := range t.Subtasks {
		if !st.Completed {
			return false
		}
	}
	return true
}

// Detect lists the milestones between two observations in a stable order:
// the sync transition, then task completions in snapshot order, then the
// overall progress change.
func Detect(prev, next Observation, at time.Time) []Event {
	stats := roadmap.DeriveStats(next.Snapshot)
	var out []Event

	switch {
	case !prev.Offline && next.Offline:
		out = append(out, Event{Type: TypeSyncOffline, Timestamp: at, Stats: stats})
	case prev.Offline && !next.Offline:
		out = append(out, Event{Type: TypeSyncRecovered, Timestamp: at, Stats: stats})
	}

	for _, t := range next.Snapshot {
		before, existed := prev.Snapshot.FindTask(t.ID)
		wasDone := existed && taskDone(before)
		isDone := taskDone(t)

		var typ string
		switch {
		case isDone && !wasDone:
			typ = TypeTaskCompleted
		case wasDone && !isDone:
			typ = TypeTaskReopened
		default:
			continue
		}
		out = append(out, Event{
			Type:      typ,
			Timestamp: at,
			TaskID:    t.ID,
			TaskName:  t.Name,
			Priority:  string(t.Priority),
			Stats:     stats,
		})
	}

	if roadmap.DeriveStats(prev.Snapshot).Percentage != stats.Percentage {
		out = append(out, Event{Type: TypeProgressChanged, Timestamp: at, Stats: stats})
	}
	return out
}
