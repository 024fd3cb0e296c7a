package cli

import (
	"fmt"
	"strconv"

	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <task-id> <subtask-id>",
	Short: "Mark a subtask done, or open again",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		services, err := startServicesForWrite(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		task, err := lookupTask(services.Sync.Snapshot(), taskID)
		if err != nil {
			return err
		}
		var sub *roadmap.SubTask
		for i := range task.Subtasks {
			if task.Subtasks[i].ID == args[1] {
				sub = &task.Subtasks[i]
			}
		}
		if sub == nil {
			return NewCLIError(fmt.Sprintf("subtask %q not found in task %d", args[1], taskID), "Run 'milestone status --all' to list subtask ids", nil)
		}

		view := services.Sync.ToggleSubtask(taskID, sub.ID)
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), view.Stats)
		}
		state := "done"
		if sub.Completed {
			state = "open"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %q is now %s. Progress %d%%\n", sub.ID, sub.Name, state, view.Stats.Percentage)
		return nil
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand <task-id>",
	Short: "Expand or collapse a task in the shared view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		services, err := startServicesForWrite(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		if _, err := lookupTask(services.Sync.Snapshot(), taskID); err != nil {
			return err
		}
		view := services.Sync.ToggleAccordion(taskID)
		task, _ := view.Snapshot.FindTask(taskID)
		if task.IsOpen {
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d expanded\n", taskID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d collapsed\n", taskID)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(toggleCmd)
	RootCmd.AddCommand(expandCmd)
}

func parseTaskID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, NewCLIError(fmt.Sprintf("invalid task id %q", arg), "Task ids are numbers, see 'milestone status'", err)
	}
	return id, nil
}

func lookupTask(snap roadmap.Snapshot, id int) (roadmap.Task, error) {
	task, ok := snap.FindTask(id)
	if !ok {
		return roadmap.Task{}, NewCLIError(fmt.Sprintf("task %d not found", id), "Run 'milestone status' to list tasks", nil)
	}
	return task, nil
}
