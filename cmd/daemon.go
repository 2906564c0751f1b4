package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/pomo/internal/api"
	"github.com/joescharf/pomo/internal/daemon"
	"github.com/joescharf/pomo/internal/logging"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/presence"
	"github.com/joescharf/pomo/internal/scheduler"
	"github.com/joescharf/pomo/internal/sse"
	"github.com/joescharf/pomo/internal/store"
	webui "github.com/joescharf/pomo/internal/ui"
	"github.com/joescharf/pomo/internal/watcher"
)

var daemonConsole bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background scheduler",
	Long: `The daemon completes timer phases and fires reminders while no pomo
command is running. It serves a small HTTP API on daemon.addr that
foreground commands push updates to, and a live dashboard at its root.

Running bare 'pomo daemon' is the same as 'pomo daemon status'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStatusRun(cmdContext(cmd))
	},
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), shutdownSignals()...)
		defer stop()
		return daemonRun(ctx)
	},
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStartRun()
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStopRun()
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonStatusRun(cmdContext(cmd))
	},
}

func init() {
	daemonRunCmd.Flags().BoolVar(&daemonConsole, "console", false, "Log to stderr instead of the daemon log file")

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "pomo-daemon.pid"))
}

func daemonLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "pomo-daemon.log")
}

func daemonRun(ctx context.Context) error {
	if !daemonConsole {
		closer, err := logging.SetupFile(daemonLogPath(), verbose)
		if err != nil {
			return fmt.Errorf("open daemon log: %w", err)
		}
		defer func() { _ = closer.Close() }()
	}

	pf := pidFile()
	if err := pf.Claim(); err != nil {
		return err
	}
	defer func() { _ = pf.Remove() }()

	s, err := getStore()
	if err != nil {
		return err
	}

	events := sse.NewBroadcaster()
	d := newDispatcher(s)
	d.Subscribe(func(n models.Notification) {
		events.Publish(sse.EventNotification, n)
	})

	tr := newTracker(s, d)
	tr.Load(ctx)
	focusLink := freshTracker{tracker: tr, onChange: func(fd models.FocusDisplay) {
		events.Publish(sse.EventFocus, fd)
	}}

	schedCfg := scheduler.Config{
		Timer:        store.NewReplicated(store.NewSnapshotStore(snapshotPath()), s, nil),
		Ledger:       s,
		Reminders:    s,
		Notifier:     d,
		Clock:        clk,
		PollInterval: viper.GetDuration("scheduler.poll_interval"),
		Writer:       "daemon-" + writerID,
	}
	if viper.GetBool("focus.auto_track") {
		schedCfg.Focus = focusLink
	}
	sched := scheduler.New(schedCfg)
	if err := sched.LoadReminders(ctx); err != nil {
		log.Warn().Err(err).Msg("Cannot load reminders, starting with none")
	}
	sched.OnTimerChange(func(st models.TimerState) {
		events.Publish(sse.EventTimer, st)
	})

	dash, err := webui.Handler()
	if err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}
	apiSrv := api.NewServer(api.Config{
		Scheduler: sched,
		Focus:     tr,
		Ledger:    s,
		Dedup:     s,
		Events:    events,
		UI:        dash,
		Clock:     clk,
		Version:   buildVersion,
	})
	addr := viper.GetString("daemon.addr")
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           apiSrv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Int("pid", os.Getpid()).Msg("Daemon listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		w := watcher.New(snapshotPath(), sched.Wake)
		if err := w.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("Snapshot watcher stopped, relying on polling")
		}
		return nil
	})
	if threshold := viper.GetDuration("focus.idle_threshold"); threshold > 0 {
		g.Go(func() error {
			m := presence.NewMonitor(presence.NewIdleProvider(), focusLink, threshold, 2*time.Second)
			if err := m.Run(ctx); errors.Is(err, presence.ErrIdleUnsupported) {
				log.Info().Msg("Idle detection unavailable")
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Daemon stopped")
	return err
}

func daemonStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"daemon", "run"}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if verbose {
		args = append(args, "--verbose")
	}

	child := exec.Command(exe, args...)
	child.Stdin = nil
	child.Stdout = io.Discard
	child.Stderr = io.Discard
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	_ = child.Process.Release()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if pid, running := pf.IsRunning(); running {
			ui.Success("Daemon started (PID %d)", pid)
			ui.Info("Log: %s", daemonLogPath())
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not start; see %s", daemonLogPath())
}

func daemonStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("daemon not running")
	}

	killed, err := pf.Stop(5 * time.Second)
	if err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	if killed {
		ui.Warning("Daemon did not exit in time, killed PID %d", pid)
		return nil
	}
	ui.Success("Daemon stopped (PID %d)", pid)
	return nil
}

func daemonStatusRun(ctx context.Context) error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Daemon not running")
		return nil
	}

	h, err := daemonClient().Health(ctx)
	if err != nil {
		ui.Warning("Daemon PID %d is alive but not answering on %s", pid, viper.GetString("daemon.addr"))
		ui.VerboseLog("health: %v", err)
		return nil
	}

	ui.Success("Daemon running (PID %d, version %s)", h.PID, h.Version)
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Address:", viper.GetString("daemon.addr"))
	fmt.Fprintf(ui.Out, "  %-12s %s\n", "Started:", h.StartedAt.Local().Format(time.DateTime))
	if !h.LastTick.IsZero() {
		fmt.Fprintf(ui.Out, "  %-12s %s\n", "Last poll:", h.LastTick.Local().Format(time.TimeOnly))
	}
	fmt.Fprintf(ui.Out, "  %-12s %d\n", "Reminders:", h.Reminders)
	return nil
}
