package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/pomo/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an assistant read and drive the timer and focus tracker.
Configure it with:

  {
    "mcpServers": {
      "pomo": { "command": "pomo", "args": ["mcp"] }
    }
  }

Available tools: pomo_timer_status, pomo_timer_start, pomo_timer_pause,
pomo_timer_resume, pomo_timer_reset, pomo_focus_status, pomo_focus_start,
pomo_focus_end, pomo_focus_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), shutdownSignals()...)
		defer stop()
		return mcpRun(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	// stdout carries the protocol.
	ui.Out = ui.ErrOut

	fg, err := loadForeground(ctx)
	if err != nil {
		return err
	}
	defer fg.close()

	return mcp.NewServer(fg.timer, fg.focus, buildVersion).ServeStdio(ctx)
}
