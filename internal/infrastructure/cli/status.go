package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/spf13/cobra"
)

// Flag variables for status command
var (
	statusPriority string
	statusExpand   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show overall progress and the tasks grouped by priority",
	Long: `Show overall progress and the tasks grouped by priority.

Subtasks are listed for expanded tasks (see 'milestone expand').

Examples:
  milestone status
  milestone status --priority P1 --all
  milestone status --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var only roadmap.Priority
		if statusPriority != "" {
			p, err := roadmap.ParsePriority(strings.ToUpper(statusPriority))
			if err != nil {
				return NewCLIError(err.Error(), "Use one of P1, P2, P3, V2", nil)
			}
			only = p
		}

		services, err := startServices(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		view := services.Sync.View()
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), view)
		}
		renderStatus(cmd.OutOrStdout(), view, only, statusExpand)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusPriority, "priority", "p", "", "Only show one tier (P1, P2, P3, V2)")
	statusCmd.Flags().BoolVarP(&statusExpand, "all", "a", false, "List subtasks of every task")
	RootCmd.AddCommand(statusCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func progressBar(pct, width int) string {
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func syncLine(view application.View) string {
	line := fmt.Sprintf("sync: %s (%s)", view.State.Label(), view.Variant)
	if !view.LastSync.IsZero() {
		line += ", last sync " + view.LastSync.Local().Format("15:04:05")
	}
	return line
}

func renderStatus(w io.Writer, view application.View, only roadmap.Priority, expandAll bool) {
	s := view.Stats
	fmt.Fprintf(w, "Progress: %d/%d subtasks (%d%%) %s\n", s.CompletedSubtasks, s.TotalSubtasks, s.Percentage, progressBar(s.Percentage, 20))
	fmt.Fprintln(w, syncLine(view))

	groups := view.Groups()
	for _, p := range roadmap.AllPriorities() {
		if only != "" && p != only {
			continue
		}
		tasks := groups[p]
		if len(tasks) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", p.DisplayName())
		for _, t := range tasks {
			ts := t.Stats()
			mark := " "
			if ts.TotalSubtasks > 0 && ts.CompletedSubtasks == ts.TotalSubtasks {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %2d %s (%d/%d) effort %d\n", mark, t.ID, t.Name, ts.CompletedSubtasks, ts.TotalSubtasks, t.Effort)
			if !t.IsOpen && !expandAll {
				continue
			}
			for _, st := range t.Subtasks {
				check := " "
				if st.Completed {
					check = "x"
				}
				fmt.Fprintf(w, "        [%s] %-6s %s\n", check, st.ID, st.Name)
			}
		}
	}
}
