package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/pomo/internal/logging"
	"github.com/joescharf/pomo/internal/output"
	"github.com/joescharf/pomo/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore *store.SQLiteStore

	// writerID identifies this process in every timer snapshot it writes.
	writerID = uuid.NewString()

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pomo",
	Short: "Pomodoro timer, focus tracker and reminders",
	Long: `pomo runs a resumable Pomodoro timer, tracks focus sessions and
interruptions, and fires habit reminders from a background daemon.

Timer state survives across invocations: start a cycle, close the terminal,
and 'pomo timer status' picks up where the clock says you are.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	closeStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return statusRun(cmd.Context())
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/pomo/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("POMO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key's default relative to stateDir.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "pomo.db"))
	viper.SetDefault("snapshot_path", filepath.Join(stateDir, "timer.json"))
	viper.SetDefault("reminders_file", filepath.Join(stateDir, "reminders.yaml"))
	viper.SetDefault("timer.work_minutes", 25)
	viper.SetDefault("timer.rest_minutes", 5)
	viper.SetDefault("scheduler.poll_interval", "5s")
	viper.SetDefault("notify.backend", "desktop")
	viper.SetDefault("notify.dedup_window", "2m")
	viper.SetDefault("notify.dedup_horizon", "24h")
	viper.SetDefault("focus.history_limit", 50)
	viper.SetDefault("focus.auto_track", true)
	viper.SetDefault("focus.welcome_back", true)
	viper.SetDefault("focus.idle_threshold", "60s")
	viper.SetDefault("daemon.addr", "127.0.0.1:7463")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	logging.Setup(ui.ErrOut, verbose)

	// Store is opened lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (*store.SQLiteStore, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(viper.GetString("db_path"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
