package sdk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoContent is returned when a tool result carries no text.
	ErrNoContent = errors.New("milestone: empty tool result")
	// ErrNotFound matches a ToolError for a task or subtask id the server
	// does not know.
	ErrNotFound = errors.New("milestone: task or subtask not found")
	// ErrIncompatible is wrapped by Compatible when the server speaks
	// another schema major.
	ErrIncompatible = errors.New("milestone: incompatible roadmap schema")
)

// ToolError is a tool call the server answered with an error result.
// TaskID and SubtaskID echo the ids the call named, when it named any.
type ToolError struct {
	Tool      string
	TaskID    int
	SubtaskID string
	Message   string
}

func (e *ToolError) Error() string {
	switch {
	case e.SubtaskID != "":
		return fmt.Sprintf("milestone: %s (task %d, subtask %s): %s", e.Tool, e.TaskID, e.SubtaskID, e.Message)
	case e.TaskID != 0:
		return fmt.Sprintf("milestone: %s (task %d): %s", e.Tool, e.TaskID, e.Message)
	}
	return fmt.Sprintf("milestone: %s: %s", e.Tool, e.Message)
}

// Is reports ErrNotFound for rejected lookups of the named ids.
func (e *ToolError) Is(target error) bool {
	return target == ErrNotFound && e.TaskID != 0 && strings.Contains(e.Message, "not found")
}
