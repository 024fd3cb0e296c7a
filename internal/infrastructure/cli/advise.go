package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Ask the AI advisor what to focus on next",
	Long: `Ask the AI advisor what to focus on next, based on the open P1 subtasks.

The provider comes from the ai section of .milestone/config.yaml and can be
overridden with MILESTONE_AI_PROVIDER and MILESTONE_AI_MODEL. When the
provider fails a fixed hint is shown instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := startServices(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		advice := services.Advisory.Advise(cmd.Context(), services.Sync.Snapshot())
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), advice)
		}
		fmt.Fprintln(cmd.OutOrStdout(), advice.Text)
		if len(advice.Remaining) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d core subtasks remaining.\n", len(advice.Remaining))
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(adviseCmd)
}
