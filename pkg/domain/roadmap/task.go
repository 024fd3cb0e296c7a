package roadmap

import (
	"encoding/json"
	"fmt"
)

// SubTask is a checkable item inside a Task.
type SubTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// Task groups subtasks under a priority tier.
// IsOpen is the expansion state of the task in the views. It is part of the
// synchronized snapshot so every client sees the same sections expanded.
type Task struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Priority Priority  `json:"priority"`
	Effort   int       `json:"effort"`
	IsOpen   bool      `json:"isOpen"`
	Subtasks []SubTask `json:"subtasks"`
}

// Snapshot is the whole task tree at one instant.
// A Snapshot is treated as an immutable value: operations return a new one.
type Snapshot []Task

// MarshalJSON encodes a nil snapshot as an empty array.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Task(s))
}

// FindTask returns the task with the given id.
func (s Snapshot) FindTask(id int) (Task, bool) {
	for _, t := range s {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for i, t := range s {
		out[i] = t
		if t.Subtasks != nil {
			out[i].Subtasks = append([]SubTask(nil), t.Subtasks...)
		}
	}
	return out
}

// Equal reports structural equality. Nil and empty subtask lists compare equal.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		a, b := s[i], other[i]
		if a.ID != b.ID || a.Name != b.Name || a.Priority != b.Priority ||
			a.Effort != b.Effort || a.IsOpen != b.IsOpen || len(a.Subtasks) != len(b.Subtasks) {
			return false
		}
		for j := range a.Subtasks {
			if a.Subtasks[j] != b.Subtasks[j] {
				return false
			}
		}
	}
	return true
}

// Validate reports duplicate ids and unknown priorities.
func (s Snapshot) Validate() error {
	var problems []string
	taskIDs := make(map[int]bool, len(s))
	for _, t := range s {
		if taskIDs[t.ID] {
			problems = append(problems, fmt.Sprintf("duplicate task id %d", t.ID))
		}
		taskIDs[t.ID] = true

		if !t.Priority.IsValid() {
			problems = append(problems, fmt.Sprintf("task %d has unknown priority %q", t.ID, t.Priority))
		}

		subIDs := make(map[string]bool, len(t.Subtasks))
		for _, st := range t.Subtasks {
			if subIDs[st.ID] {
				problems = append(problems, fmt.Sprintf("task %d has duplicate subtask id %q", t.ID, st.ID))
			}
			subIDs[st.ID] = true
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ToggleSubtask flips the completed flag of one subtask.
// Unknown ids leave the snapshot untouched and the input is returned as-is.
func ToggleSubtask(s Snapshot, taskID int, subtaskID string) Snapshot {
	for i, t := range s {
		if t.ID != taskID {
			continue
		}
		for j, st := range t.Subtasks {
			if st.ID != subtaskID {
				continue
			}
			subs := append([]SubTask(nil), t.Subtasks...)
			subs[j].Completed = !st.Completed

			out := append(Snapshot(nil), s...)
			out[i].Subtasks = subs
			return out
		}
		return s
	}
	return s
}

// ToggleAccordion flips the expansion state of one task.
func ToggleAccordion(s Snapshot, taskID int) Snapshot {
	for i, t := range s {
		if t.ID == taskID {
			out := append(Snapshot(nil), s...)
			out[i].IsOpen = !t.IsOpen
			return out
		}
	}
	return s
}

// GroupByPriority buckets tasks by tier, preserving snapshot order.
// Every known tier is present in the result, possibly empty.
func GroupByPriority(s Snapshot) map[Priority][]Task {
	groups := make(map[Priority][]Task, len(AllPriorities()))
	for _, p := range AllPriorities() {
		groups[p] = []Task{}
	}
	for _, t := range s {
		groups[t.Priority] = append(groups[t.Priority], t)
	}
	return groups
}

// IncompleteSubtasks returns the names of unfinished subtasks under a tier.
func IncompleteSubtasks(s Snapshot, p Priority) []string {
	var names []string
	for _, t := range s {
		if t.Priority != p {
			continue
		}
		for _, st := range t.Subtasks {
			if !st.Completed {
				names = append(names, st.Name)
			}
		}
	}
	return names
}
