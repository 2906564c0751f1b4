package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/daemon"
	"github.com/joescharf/pomo/internal/focus"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/notify"
	"github.com/joescharf/pomo/internal/pomodoro"
	"github.com/joescharf/pomo/internal/store"
)

// clk is the time source for every command; tests swap in a clock.Fake.
var clk clock.Clock = clock.Real()

// foreground is one foreground execution context: a timer controller and a
// focus tracker sharing one notification dispatcher.
type foreground struct {
	timer  *pomodoro.Controller
	focus  *focus.Tracker
	notify *notify.Dispatcher
}

func (f *foreground) close() {
	f.timer.Close()
}

// settingsFromConfig returns the phase lengths for the next cycle.
func settingsFromConfig() models.Settings {
	s := models.Settings{
		WorkSeconds: viper.GetInt("timer.work_minutes") * 60,
		RestSeconds: viper.GetInt("timer.rest_minutes") * 60,
	}
	if !s.Valid() {
		ui.Warning("Invalid timer lengths in config, using 25/5")
		return models.DefaultSettings()
	}
	return s
}

func snapshotPath() string {
	if p := viper.GetString("snapshot_path"); p != "" {
		return p
	}
	return filepath.Join(viper.GetString("state_dir"), "timer.json")
}

func daemonClient() *daemon.Client {
	return daemon.NewClient(viper.GetString("daemon.addr"))
}

func newDispatcher(s store.DedupStore) *notify.Dispatcher {
	return notify.NewDispatcher(
		notify.New(viper.GetString("notify.backend"), ui),
		s, clk,
		notify.WithWindow(viper.GetDuration("notify.dedup_window")),
		notify.WithHorizon(viper.GetDuration("notify.dedup_horizon")),
	)
}

func newTracker(s store.FocusStore, d *notify.Dispatcher) *focus.Tracker {
	return focus.NewTracker(s, d, clk, focus.Options{
		HistoryLimit: viper.GetInt("focus.history_limit"),
		WelcomeBack:  viper.GetBool("focus.welcome_back"),
	})
}

// loadForeground opens the store and builds a loaded foreground context.
// Timer writes go to the snapshot file and the database, and are pushed to
// the daemon when one is listening.
func loadForeground(ctx context.Context) (*foreground, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	d := newDispatcher(s)
	tr := newTracker(s, d)
	tr.Load(ctx)

	cfg := pomodoro.Config{
		Store:    store.NewReplicated(store.NewSnapshotStore(snapshotPath()), s, daemonClient()),
		Ledger:   s,
		Notifier: d,
		Clock:    clk,
		Settings: settingsFromConfig(),
		Writer:   writerID,
	}
	if viper.GetBool("focus.auto_track") {
		cfg.Focus = tr
	}
	ctrl := pomodoro.New(cfg)
	ctrl.Load(ctx)

	return &foreground{timer: ctrl, focus: tr, notify: d}, nil
}
