package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"psurops/internal/mcp"
	"psurops/internal/version"
)

func newMCPCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server. Every operation is exposed as an
MCP tool with its input schema; change events are forwarded to the client as
notifications/message. Messages are newline-delimited JSON-RPC 2.0 on stdin
and stdout, and logs go to stderr.

This command is normally launched by an MCP client rather than by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, g, true)
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcp.NewMCPServer(version.Version, a.dispatcher, a.notifier, a.logger)
			server.SetStdin(cmd.InOrStdin())
			server.SetStdout(cmd.OutOrStdout())
			return server.Start(ctx)
		},
	}
}
