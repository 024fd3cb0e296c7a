package sdk

import (
	"time"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

// StatusResult is the milestone_status payload.
type StatusResult struct {
	Stats   roadmap.Stats `json:"stats"`
	State   string        `json:"state"`
	Offline bool          `json:"offline"`
	Variant string        `json:"variant"`
	Groups  []Group       `json:"groups"`
}

// Group lists the tasks of one priority tier.
type Group struct {
	Priority string       `json:"priority"`
	Label    string       `json:"label"`
	Tasks    []TaskStatus `json:"tasks"`
}

// TaskStatus summarizes a task. Open holds "<id> <name>" for each unfinished subtask.
type TaskStatus struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Effort     int      `json:"effort"`
	Completed  int      `json:"completed"`
	Total      int      `json:"total"`
	Percentage int      `json:"percentage"`
	Open       []string `json:"open,omitempty"`
}

// SyncResult is returned by a successful milestone_sync.
type SyncResult struct {
	State    string        `json:"state"`
	LastSync time.Time     `json:"lastSync"`
	Stats    roadmap.Stats `json:"stats"`
}

// Advice is the milestone_advise payload.
type Advice struct {
	Text      string        `json:"text"`
	Source    string        `json:"source"`
	Remaining []string      `json:"remaining"`
	Model     string        `json:"model,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RoadmapInfo is the milestone://roadmap resource.
type RoadmapInfo struct {
	SchemaVersion string           `json:"schema_version"`
	ServerVersion string           `json:"server_version"`
	Revision      uint64           `json:"revision"`
	State         string           `json:"state"`
	Stats         roadmap.Stats    `json:"stats"`
	Tasks         roadmap.Snapshot `json:"tasks"`
}
