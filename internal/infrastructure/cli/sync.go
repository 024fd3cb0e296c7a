package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the stored roadmap now and adopt it",
	Long: `Fetch the stored roadmap now and adopt it, even when this machine wrote
recently. In shared mode a missing remote copy is seeded with the bundled
roadmap on first contact.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := startServices(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		syncErr := services.Sync.ForceSync(cmd.Context())
		view := services.Sync.View()
		if jsonOutput {
			if err := writeJSON(cmd.OutOrStdout(), map[string]any{
				"state":    view.State,
				"lastSync": view.LastSync,
				"stats":    view.Stats,
			}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nProgress: %d/%d subtasks (%d%%)\n",
				syncLine(view), view.Stats.CompletedSubtasks, view.Stats.TotalSubtasks, view.Stats.Percentage)
		}
		return MapError(syncErr)
	},
}

func init() {
	RootCmd.AddCommand(syncCmd)
}
