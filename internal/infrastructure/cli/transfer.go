package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the roadmap to a JSON backup",
	Long: `Write the roadmap to a JSON backup.

Without --output the file is named roadmap-backup-YYYY-MM-DD.json in the
current directory. Use --output - for stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := startServices(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		target := exportOutput
		if target == "" {
			target = application.ExportFilename(time.Now())
		}

		var w io.Writer = cmd.OutOrStdout()
		if target != "-" {
			// #nosec G304 -- User-specified output path
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return MapError(fmt.Errorf("create %s: %w", target, err))
			}
			defer f.Close()
			w = f
		}

		if err := services.Transfer.Export(w, services.Sync.Snapshot()); err != nil {
			return err
		}
		if target != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tasks to %s\n", len(services.Sync.Snapshot()), target)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the roadmap with a JSON backup",
	Long: `Replace the roadmap with a JSON backup. In shared mode the imported
roadmap is pushed right away and becomes the copy every instance adopts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// #nosec G304 -- User-specified input path
		f, err := os.Open(args[0])
		if err != nil {
			return MapError(fmt.Errorf("open %s: %w", args[0], err))
		}
		defer f.Close()

		services, err := startServices(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		snap, err := services.Transfer.Import(args[0], f)
		if err != nil {
			return MapError(err)
		}
		view := services.Sync.Replace(snap)
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks. Progress %d/%d subtasks (%d%%)\n",
			len(view.Snapshot), view.Stats.CompletedSubtasks, view.Stats.TotalSubtasks, view.Stats.Percentage)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file ('-' for stdout)")
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(importCmd)
}
