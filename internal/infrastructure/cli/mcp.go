package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	inframcp "github.com/felixgeelhaar/milestone/internal/infrastructure/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpTransport string
	mcpAddr      string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI agents.

Transports:
  stdio  requests on stdin, responses on stdout (default)
  http   JSON-RPC over HTTP on --addr
  ws     JSON-RPC over WebSocket on --addr`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		services, err := startServices(ctx)
		if err != nil {
			return err
		}
		defer finish(services)

		go func() { _ = services.Sync.Run(ctx) }()

		server, err := inframcp.NewServer(services)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		var serveErr error
		switch mcpTransport {
		case "stdio":
			serveErr = server.ServeStdio(ctx)
		case "http":
			fmt.Fprintf(cmd.ErrOrStderr(), "MCP over HTTP on %s\n", mcpAddr)
			serveErr = server.ServeHTTP(ctx, mcpAddr)
		case "ws", "websocket":
			fmt.Fprintf(cmd.ErrOrStderr(), "MCP over WebSocket on %s\n", mcpAddr)
			serveErr = server.ServeWebSocket(ctx, mcpAddr)
		default:
			return NewCLIError(fmt.Sprintf("unknown transport %q", mcpTransport), "Use stdio, http or ws", nil)
		}
		if errors.Is(serveErr, context.Canceled) {
			return nil
		}
		return serveErr
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport (stdio, http, ws)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", ":8090", "Listen address for http and ws transports")
	RootCmd.AddCommand(mcpCmd)
}
