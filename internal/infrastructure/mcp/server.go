// Package mcp exposes the roadmap to MCP clients.
package mcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/milestone/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

type Server struct {
	mcpServer  *mcp.Server
	controller *application.SyncController
	advisory   *application.AdvisoryService
	transfer   *application.TransferService
}

// mcpErr returns a user-friendly error for MCP clients.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

// NewServer registers the tools. The caller owns the controller lifecycle
// (Start, Run, Close).
func NewServer(services *wiring.AppServices) (*Server, error) {
	if services == nil || services.Sync == nil {
		return nil, fmt.Errorf("services initialization returned nil")
	}

	info := mcp.ServerInfo{
		Name:    "milestone",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Milestone MCP Server"),
			mcp.WithDescription("Milestone exposes roadmap progress, subtask toggles and sync state to MCP clients."),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use milestone_status to read progress, the toggle tools to record work, and milestone_sync to pull the shared copy."),
		),
		controller: services.Sync,
		advisory:   services.Advisory,
		transfer:   services.Transfer,
	}

	s.registerTools()
	s.registerRoadmapResource()
	return s, nil
}

type StatusArgs struct {
	Priority string `json:"priority,omitempty" jsonschema:"description=Only list tasks of this tier (P1, P2, P3, V2)"`
}

type ToggleSubtaskArgs struct {
	TaskID    int    `json:"task_id" jsonschema:"description=Numeric id of the task"`
	SubtaskID string `json:"subtask_id" jsonschema:"description=Id of the subtask, e.g. 1-2"`
}

type ToggleTaskArgs struct {
	TaskID int `json:"task_id" jsonschema:"description=Numeric id of the task to expand or collapse"`
}

type ImportArgs struct {
	Roadmap string `json:"roadmap" jsonschema:"description=A roadmap backup as a JSON array"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("milestone_status").
		Description("Get overall progress and the tasks grouped by priority").
		Handler(s.handleStatus)

	s.mcpServer.Tool("milestone_toggle_subtask").
		Description("Mark a subtask done, or undo it when already done").
		Handler(s.handleToggleSubtask)

	s.mcpServer.Tool("milestone_toggle_task").
		Description("Expand or collapse a task in the shared view").
		Handler(s.handleToggleTask)

	s.mcpServer.Tool("milestone_sync").
		Description("Fetch the stored roadmap now and adopt it").
		Handler(s.handleSync)

	s.mcpServer.Tool("milestone_advise").
		Description("Ask the AI advisor what to focus on next for the MVP").
		Handler(s.handleAdvise)

	s.mcpServer.Tool("milestone_export").
		Description("Export the roadmap as a JSON backup").
		Handler(s.handleExport)

	s.mcpServer.Tool("milestone_import").
		Description("Replace the roadmap with a JSON backup").
		Handler(s.handleImport)
}

type taskStatus struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Effort     int      `json:"effort"`
	Completed  int      `json:"completed"`
	Total      int      `json:"total"`
	Percentage int      `json:"percentage"`
	Open       []string `json:"open,omitempty"`
}

type groupStatus struct {
	Priority string       `json:"priority"`
	Label    string       `json:"label"`
	Tasks    []taskStatus `json:"tasks"`
}

type statusResponse struct {
	Stats   roadmap.Stats `json:"stats"`
	State   string        `json:"state"`
	Offline bool          `json:"offline"`
	Variant string        `json:"variant"`
	Groups  []groupStatus `json:"groups"`
}

func (s *Server) handleStatus(ctx context.Context, args StatusArgs) (any, error) {
	var only roadmap.Priority
	if args.Priority != "" {
		p, err := roadmap.ParsePriority(strings.ToUpper(strings.TrimSpace(args.Priority)))
		if err != nil {
			return nil, mcpErr(fmt.Sprintf("Unknown priority %q. Use P1, P2, P3 or V2.", args.Priority))
		}
		only = p
	}

	view := s.controller.View()
	groups := view.Groups()
	resp := statusResponse{
		Stats:   view.Stats,
		State:   view.State.Label(),
		Offline: view.Offline(),
		Variant: string(view.Variant),
	}
	for _, p := range roadmap.AllPriorities() {
		if only != "" && p != only {
			continue
		}
		g := groupStatus{Priority: p.String(), Label: p.DisplayName(), Tasks: []taskStatus{}}
		for _, t := range groups[p] {
			st := t.Stats()
			ts := taskStatus{ID: t.ID, Name: t.Name, Effort: t.Effort,
				Completed: st.CompletedSubtasks, Total: st.TotalSubtasks, Percentage: st.Percentage}
			for _, sub := range t.Subtasks {
				if !sub.Completed {
					ts.Open = append(ts.Open, sub.ID+" "+sub.Name)
				}
			}
			g.Tasks = append(g.Tasks, ts)
		}
		resp.Groups = append(resp.Groups, g)
	}
	return resp, nil
}

func (s *Server) handleToggleSubtask(ctx context.Context, args ToggleSubtaskArgs) (string, error) {
	task, ok := s.controller.Snapshot().FindTask(args.TaskID)
	if !ok {
		return "", mcpErr(fmt.Sprintf("Task %d not found. Use milestone_status to list tasks.", args.TaskID))
	}
	var name string
	found := false
	for _, st := range task.Subtasks {
		if st.ID == args.SubtaskID {
			name, found = st.Name, true
		}
	}
	if !found {
		return "", mcpErr(fmt.Sprintf("Subtask %q not found in task %d.", args.SubtaskID, args.TaskID))
	}

	view := s.controller.ToggleSubtask(args.TaskID, args.SubtaskID)
	updated, _ := view.Snapshot.FindTask(args.TaskID)
	state := "open"
	for _, st := range updated.Subtasks {
		if st.ID == args.SubtaskID && st.Completed {
			state = "done"
		}
	}
	return fmt.Sprintf("Subtask %s (%s) is now %s. Overall progress %d%%.", args.SubtaskID, name, state, view.Stats.Percentage), nil
}

func (s *Server) handleToggleTask(ctx context.Context, args ToggleTaskArgs) (string, error) {
	if _, ok := s.controller.Snapshot().FindTask(args.TaskID); !ok {
		return "", mcpErr(fmt.Sprintf("Task %d not found. Use milestone_status to list tasks.", args.TaskID))
	}
	view := s.controller.ToggleAccordion(args.TaskID)
	task, _ := view.Snapshot.FindTask(args.TaskID)
	if task.IsOpen {
		return fmt.Sprintf("Task %d expanded", args.TaskID), nil
	}
	return fmt.Sprintf("Task %d collapsed", args.TaskID), nil
}

func (s *Server) handleSync(ctx context.Context, args struct{}) (any, error) {
	if err := s.controller.ForceSync(ctx); err != nil {
		return nil, mcpErr("Sync failed. The roadmap store is unreachable; local changes are kept.")
	}
	view := s.controller.View()
	return map[string]any{
		"state":    view.State.Label(),
		"lastSync": view.LastSync,
		"stats":    view.Stats,
	}, nil
}

func (s *Server) handleAdvise(ctx context.Context, args struct{}) (any, error) {
	if s.advisory == nil {
		return nil, mcpErr("Advisory is not configured.")
	}
	return s.advisory.Advise(ctx, s.controller.Snapshot()), nil
}

func (s *Server) handleExport(ctx context.Context, args struct{}) (string, error) {
	var buf bytes.Buffer
	if err := s.transfer.Export(&buf, s.controller.Snapshot()); err != nil {
		return "", mcpErr("Failed to export the roadmap.")
	}
	return buf.String(), nil
}

func (s *Server) handleImport(ctx context.Context, args ImportArgs) (string, error) {
	snap, err := s.transfer.Import("mcp", strings.NewReader(args.Roadmap))
	if err != nil {
		return "", mcpErr("Import rejected: the payload is not a roadmap array.")
	}
	view := s.controller.Replace(snap)
	return fmt.Sprintf("Imported %d tasks. Overall progress %d%%.", len(view.Snapshot), view.Stats.Percentage), nil
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	return mcp.ServeWebSocket(ctx, s.mcpServer, addr)
}
