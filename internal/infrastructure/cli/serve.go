package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/web"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the roadmap dashboard and its live API",
	Long: `Serve the roadmap dashboard and its JSON API.

Open views are refreshed over Server-Sent Events (/events) and WebSocket
(/ws). The remote store is polled in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		services, err := startServices(ctx)
		if err != nil {
			return err
		}
		defer finish(services)

		go func() {
			if err := services.Sync.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("poll loop stopped", "err", err)
			}
		}()

		srv := web.NewServer(services.Sync, services.Transfer, services.Advisory, slog.Default())
		fmt.Fprintf(cmd.OutOrStdout(), "Dashboard on http://%s\n", displayAddr(serveAddr))
		return srv.ListenAndServe(ctx, serveAddr)
	},
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	RootCmd.AddCommand(serveCmd)
}
