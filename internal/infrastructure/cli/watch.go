package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/watch"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the local roadmap file and print progress on every change",
	Long: `Follow .milestone/roadmap.json and print progress whenever it changes,
for example when another process or an editor saves it.

Only available in standalone mode; shared mode already polls the remote.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer finish(services)

		ws := services.Workspace
		if ws.Shared() {
			return NewCLIError("watch only follows the local roadmap file",
				"Use 'milestone serve' or 'milestone tui' to follow a shared roadmap", nil)
		}
		if err := services.Sync.Start(ctx); err != nil {
			slog.Warn("could not read roadmap", "err", err)
		}

		out := cmd.OutOrStdout()
		unsubscribe := services.Sync.Subscribe(func(v application.View) {
			fmt.Fprintf(out, "%s  %d/%d subtasks (%d%%)\n", v.LastSync.Format("15:04:05"),
				v.Stats.CompletedSubtasks, v.Stats.TotalSubtasks, v.Stats.Percentage)
		})
		defer unsubscribe()

		w, err := watch.NewFileWatcher(ws.Store.Path(), watch.DefaultDebounce, slog.Default(), func(ev watch.ChangeEvent) {
			slog.Debug("roadmap file changed", "path", ev.Path, "change", ev.ChangeType)
			// Edits from this process arrive inside the suppression window and are skipped.
			if err := services.Sync.Refresh(ctx, false); err != nil {
				slog.Warn("reload failed", "err", err)
			}
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", w.Path())
		go func() { _ = services.Sync.Run(ctx) }()

		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(watchCmd)
}
