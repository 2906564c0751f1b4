package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/output"
	"github.com/joescharf/pomo/internal/pomodoro"
)

var timerWatchInterval time.Duration

var timerCmd = &cobra.Command{
	Use:     "timer",
	Aliases: []string{"t"},
	Short:   "Control the Pomodoro timer",
	Long: `Control the Pomodoro timer.

Running bare 'pomo timer' is the same as 'pomo timer status'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerStatusRun(cmdContext(cmd))
	},
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a work phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerCommandRun(cmdContext(cmd), "start")
	},
}

var timerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerCommandRun(cmdContext(cmd), "pause")
	},
}

var timerResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerCommandRun(cmdContext(cmd), "resume")
	},
}

var timerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the current cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerCommandRun(cmdContext(cmd), "reset")
	},
}

var timerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return timerStatusRun(cmdContext(cmd))
	},
}

var timerWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live countdown until interrupted",
	Long: `Show a live countdown. Phase transitions and notifications happen while
watching, and changes made from other terminals show up on the next tick.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), shutdownSignals()...)
		defer stop()
		return timerWatchRun(ctx)
	},
}

func init() {
	timerWatchCmd.Flags().DurationVar(&timerWatchInterval, "interval", time.Second, "Refresh interval")

	timerCmd.AddCommand(timerStartCmd)
	timerCmd.AddCommand(timerPauseCmd)
	timerCmd.AddCommand(timerResumeCmd)
	timerCmd.AddCommand(timerResetCmd)
	timerCmd.AddCommand(timerStatusCmd)
	timerCmd.AddCommand(timerWatchCmd)
	rootCmd.AddCommand(timerCmd)
}

// cmdContext returns the command's context, or Background when the command
// runs outside Execute.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func timerCommandRun(ctx context.Context, name string) error {
	fg, err := loadForeground(ctx)
	if err != nil {
		return err
	}
	defer fg.close()

	var res pomodoro.Result
	switch name {
	case "start":
		res = fg.timer.Start(ctx)
	case "pause":
		res = fg.timer.Pause(ctx)
	case "resume":
		res = fg.timer.Resume(ctx)
	case "reset":
		res = fg.timer.Reset(ctx)
	default:
		return fmt.Errorf("unknown timer command %q", name)
	}

	if !res.Applied {
		ui.Warning("Cannot %s: timer is %s", name, describeMode(res.Display))
		return nil
	}

	switch name {
	case "start":
		ui.Success("Work phase started: %s", output.FormatClock(res.Display.RemainingSeconds))
	case "pause":
		ui.Success("Paused with %s left", output.FormatClock(res.Display.RemainingSeconds))
	case "resume":
		ui.Success("Resumed: %s left", output.FormatClock(res.Display.RemainingSeconds))
	case "reset":
		ui.Success("Timer reset")
	}
	return nil
}

func timerStatusRun(ctx context.Context) error {
	fg, err := loadForeground(ctx)
	if err != nil {
		return err
	}
	defer fg.close()

	printTimer(fg.timer.Display(ctx))
	return nil
}

func timerWatchRun(ctx context.Context) error {
	fg, err := loadForeground(ctx)
	if err != nil {
		return err
	}
	defer fg.close()

	fg.timer.Watch(ctx, timerWatchInterval, func(d models.TimerDisplay) {
		fmt.Fprintf(ui.Out, "\r\033[K%s", timerLine(d))
	})
	fmt.Fprintln(ui.Out)
	return nil
}

func describeMode(d models.TimerDisplay) string {
	switch {
	case d.Mode == models.ModeIdle:
		return "idle"
	case d.IsPaused:
		return "paused"
	default:
		return "running"
	}
}

// timerLine renders a one-line summary, e.g. "work 12:34  3 done".
func timerLine(d models.TimerDisplay) string {
	mode := output.ModeColor(string(d.Mode))
	if d.Mode == models.ModeIdle {
		return fmt.Sprintf("%s  %d done", mode, d.SessionCount)
	}
	line := fmt.Sprintf("%s %s", mode, output.Bold(output.FormatClock(d.RemainingSeconds)))
	if d.IsPaused {
		line += " " + output.Yellow("paused")
	}
	return fmt.Sprintf("%s  %d done", line, d.SessionCount)
}

func printTimer(d models.TimerDisplay) {
	fmt.Fprintf(ui.Out, "  %-10s %s\n", "Mode:", output.ModeColor(string(d.Mode)))
	if d.Mode != models.ModeIdle {
		fmt.Fprintf(ui.Out, "  %-10s %s\n", "Remaining:", output.FormatClock(d.RemainingSeconds))
		if d.IsPaused {
			fmt.Fprintf(ui.Out, "  %-10s %s\n", "State:", output.Yellow("paused"))
		} else if d.Deadline != nil {
			fmt.Fprintf(ui.Out, "  %-10s %s\n", "Ends at:", d.Deadline.Local().Format("15:04:05"))
		}
	}
	fmt.Fprintf(ui.Out, "  %-10s %d\n", "Completed:", d.SessionCount)
}
