package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/pomo/internal/focus"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/output"
	"github.com/joescharf/pomo/internal/presence"
)

var (
	focusHistoryLimit int
	focusWatchIdle    bool
)

var focusCmd = &cobra.Command{
	Use:     "focus",
	Aliases: []string{"f"},
	Short:   "Track focus sessions and interruptions",
	Long: `Track focus sessions and the interruptions inside them.

Running bare 'pomo focus' is the same as 'pomo focus status'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusStatusRun(cmdContext(cmd))
	},
}

var focusStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusStartRun(cmdContext(cmd))
	},
}

var focusEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active focus session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusEndRun(cmdContext(cmd))
	},
}

var focusStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active focus session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusStatusRun(cmdContext(cmd))
	},
}

var focusAwayCmd = &cobra.Command{
	Use:   "away",
	Short: "Record that you stepped away",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusVisibilityRun(cmdContext(cmd), false)
	},
}

var focusBackCmd = &cobra.Command{
	Use:   "back",
	Short: "Record that you are back",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusVisibilityRun(cmdContext(cmd), true)
	},
}

var focusWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show live focus time until interrupted",
	Long: `Show live focus time. With --idle, input idle time beyond
focus.idle_threshold counts as being away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), shutdownSignals()...)
		defer stop()
		return focusWatchRun(ctx)
	},
}

var focusHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed focus sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusHistoryRun(cmdContext(cmd))
	},
}

var focusStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate focus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return focusStatsRun(cmdContext(cmd))
	},
}

func init() {
	focusHistoryCmd.Flags().IntVarP(&focusHistoryLimit, "limit", "l", 10, "Number of sessions to show")
	focusWatchCmd.Flags().BoolVar(&focusWatchIdle, "idle", true, "Detect away time from input idleness")

	focusCmd.AddCommand(focusStartCmd)
	focusCmd.AddCommand(focusEndCmd)
	focusCmd.AddCommand(focusStatusCmd)
	focusCmd.AddCommand(focusAwayCmd)
	focusCmd.AddCommand(focusBackCmd)
	focusCmd.AddCommand(focusWatchCmd)
	focusCmd.AddCommand(focusHistoryCmd)
	focusCmd.AddCommand(focusStatsCmd)
	rootCmd.AddCommand(focusCmd)
}

// loadTracker opens the store and returns a tracker with the active session
// loaded. Focus commands do not need the timer.
func loadTracker(ctx context.Context) (*focus.Tracker, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	tr := newTracker(s, newDispatcher(s))
	tr.Load(ctx)
	return tr, nil
}

// freshTracker reloads the active session before every change so sessions
// started or ended by another process are not overwritten. Long-running
// commands hand it to the idle monitor and the scheduler.
type freshTracker struct {
	tracker  *focus.Tracker
	onChange func(models.FocusDisplay)
}

func (f freshTracker) SetVisible(ctx context.Context, visible bool) bool {
	f.tracker.Load(ctx)
	changed := f.tracker.SetVisible(ctx, visible)
	if changed && f.onChange != nil {
		f.onChange(f.tracker.Display())
	}
	return changed
}

func (f freshTracker) EndIfActive(ctx context.Context) {
	f.tracker.Load(ctx)
	if f.tracker.Active() == nil {
		return
	}
	f.tracker.EndIfActive(ctx)
	if f.onChange != nil {
		f.onChange(f.tracker.Display())
	}
}

func focusStartRun(ctx context.Context) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}
	fs, err := tr.Start(ctx)
	if errors.Is(err, focus.ErrSessionActive) {
		ui.Warning("A focus session is already active")
		return nil
	}
	if err != nil {
		return err
	}
	ui.Success("Focus session started at %s", fs.StartTime.Local().Format("15:04"))
	return nil
}

func focusEndRun(ctx context.Context) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}
	fs, err := tr.End(ctx)
	if errors.Is(err, focus.ErrNoActiveSession) {
		ui.Warning("No active focus session")
		return nil
	}
	if err != nil {
		return err
	}
	ui.Success("Focus session ended: %s focused, %d interruptions",
		output.FormatDuration(fs.TotalTime), len(fs.Interruptions))
	return nil
}

func focusStatusRun(ctx context.Context) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}
	printFocus(tr.Display())
	return nil
}

func focusVisibilityRun(ctx context.Context, visible bool) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}
	if tr.Active() == nil {
		ui.Warning("No active focus session")
		return nil
	}
	if !tr.SetVisible(ctx, visible) {
		if visible {
			ui.Info("Already back")
		} else {
			ui.Info("Already away")
		}
		return nil
	}
	if visible {
		ui.Success("Welcome back")
	} else {
		ui.Success("Marked as away")
	}
	return nil
}

func focusWatchRun(ctx context.Context) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if focusWatchIdle {
		g.Go(func() error {
			m := presence.NewMonitor(presence.NewIdleProvider(), freshTracker{tracker: tr},
				viper.GetDuration("focus.idle_threshold"), 2*time.Second)
			err := m.Run(ctx)
			if errors.Is(err, presence.ErrIdleUnsupported) {
				log.Info().Msg("Idle detection unavailable, use 'pomo focus away' and 'pomo focus back'")
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			tr.Load(ctx)
			fmt.Fprintf(ui.Out, "\r\033[K%s", focusLine(tr.Display()))
			select {
			case <-ctx.Done():
				fmt.Fprintln(ui.Out)
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

func focusHistoryRun(ctx context.Context) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}
	sessions, err := tr.History(ctx, focusHistoryLimit)
	if err != nil {
		return fmt.Errorf("list focus sessions: %w", err)
	}
	if len(sessions) == 0 {
		ui.Info("No completed focus sessions")
		return nil
	}

	table := ui.Table([]string{"Started", "Focus", "Away", "Interruptions"})
	for _, fs := range sessions {
		away := 0
		for _, in := range fs.Interruptions {
			away += in.Duration
		}
		table.Append([]string{
			fs.StartTime.Local().Format("2006-01-02 15:04"),
			output.FormatDuration(fs.TotalTime),
			output.FormatDuration(away),
			strconv.Itoa(len(fs.Interruptions)),
		})
	}
	return table.Render()
}

func focusStatsRun(ctx context.Context) error {
	tr, err := loadTracker(ctx)
	if err != nil {
		return err
	}
	st, err := tr.Stats(ctx)
	if err != nil {
		return fmt.Errorf("load focus stats: %w", err)
	}

	fmt.Fprintf(ui.Out, "  %-22s %d\n", "Sessions:", st.SessionsCompleted)
	fmt.Fprintf(ui.Out, "  %-22s %s\n", "Total focus:", output.FormatDuration(st.TotalFocusTime))
	fmt.Fprintf(ui.Out, "  %-22s %s\n", "Average session:", output.FormatDuration(int(st.AverageSessionLength)))
	fmt.Fprintf(ui.Out, "  %-22s %s\n", "Longest session:", output.FormatDuration(st.LongestStreak))
	fmt.Fprintf(ui.Out, "  %-22s %s\n", "Last session:", output.FormatDuration(st.LastSessionSeconds))
	fmt.Fprintf(ui.Out, "  %-22s %d\n", "Interruptions:", st.TotalInterruptions)
	fmt.Fprintf(ui.Out, "  %-22s %d\n", "Day streak:", st.DayStreak)
	return nil
}

func focusLine(d models.FocusDisplay) string {
	if !d.IsFocusModeActive {
		return output.Cyan("no focus session")
	}
	state := output.Green("focused")
	if !d.IsVisible {
		state = output.Yellow("away")
	}
	return fmt.Sprintf("%s %s  away %s  %d interruptions", state,
		output.Bold(output.FormatDuration(d.CurrentFocusSeconds)),
		output.FormatDuration(d.TimeAwaySeconds), len(d.Interruptions))
}

func printFocus(d models.FocusDisplay) {
	if !d.IsFocusModeActive {
		ui.Info("No active focus session")
		return
	}
	state := output.Green("focused")
	if !d.IsVisible {
		state = output.Yellow("away")
	}
	fmt.Fprintf(ui.Out, "  %-15s %s\n", "State:", state)
	fmt.Fprintf(ui.Out, "  %-15s %s\n", "Focus time:", output.FormatDuration(d.CurrentFocusSeconds))
	fmt.Fprintf(ui.Out, "  %-15s %s\n", "Time away:", output.FormatDuration(d.TimeAwaySeconds))
	fmt.Fprintf(ui.Out, "  %-15s %d\n", "Interruptions:", len(d.Interruptions))
}
