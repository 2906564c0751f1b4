package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/pomo/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show timer, focus session and daemon at a glance",
	Long: `Show the timer, the active focus session and whether the daemon is running.
Running bare 'pomo' does the same.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(cmdContext(cmd))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(ctx context.Context) error {
	fg, err := loadForeground(ctx)
	if err != nil {
		return err
	}
	defer fg.close()

	fmt.Fprintln(ui.Out, output.Bold("Timer"))
	printTimer(fg.timer.Display(ctx))

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, output.Bold("Focus"))
	printFocus(fg.focus.Display())

	fmt.Fprintln(ui.Out)
	if pid, running := pidFile().IsRunning(); running {
		fmt.Fprintf(ui.Out, "%s %s\n", output.Bold("Daemon"), output.Green(fmt.Sprintf("running (PID %d)", pid)))
	} else {
		fmt.Fprintf(ui.Out, "%s %s\n", output.Bold("Daemon"), output.Yellow("not running"))
	}
	return nil
}
