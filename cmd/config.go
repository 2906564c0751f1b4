package cmd

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pomo"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage pomo configuration.

Running bare 'pomo config' is the same as 'pomo config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# pomo configuration
# See: pomo config show (for effective values and sources)

# State/data directory (default: ~/.config/pomo)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/pomo/pomo.db)
# db_path: {{ .DBPath }}

# Timer snapshot file read on every command (default: ~/.config/pomo/timer.json)
# snapshot_path: {{ .SnapshotPath }}

# Reminders file used by 'pomo reminder sync' (default: ~/.config/pomo/reminders.yaml)
# reminders_file: {{ .RemindersFile }}

timer:
  # Phase lengths for new cycles. A running cycle keeps the lengths it started with.
  work_minutes: {{ .WorkMinutes }}
  rest_minutes: {{ .RestMinutes }}

notify:
  # Notification backend: desktop, console or none (default: desktop)
  backend: "{{ .NotifyBackend }}"

  # A notification key fires at most once per window (default: 2m)
  dedup_window: "{{ .DedupWindow }}"

focus:
  # Start a focus session with each work phase and end it after the rest phase
  auto_track: {{ .FocusAutoTrack }}

  # Notify with the time away when you come back
  welcome_back: {{ .FocusWelcomeBack }}

  # Input idle time after which you count as away; 0 disables idle detection
  idle_threshold: "{{ .FocusIdleThreshold }}"

daemon:
  # Address the background daemon listens on (default: 127.0.0.1:7463)
  addr: "{{ .DaemonAddr }}"
`

type configTemplateData struct {
	StateDir           string
	DBPath             string
	SnapshotPath       string
	RemindersFile      string
	WorkMinutes        int
	RestMinutes        int
	NotifyBackend      string
	DedupWindow        string
	FocusAutoTrack     bool
	FocusWelcomeBack   bool
	FocusIdleThreshold string
	DaemonAddr         string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:           viper.GetString("state_dir"),
		DBPath:             viper.GetString("db_path"),
		SnapshotPath:       viper.GetString("snapshot_path"),
		RemindersFile:      viper.GetString("reminders_file"),
		WorkMinutes:        viper.GetInt("timer.work_minutes"),
		RestMinutes:        viper.GetInt("timer.rest_minutes"),
		NotifyBackend:      viper.GetString("notify.backend"),
		DedupWindow:        viper.GetDuration("notify.dedup_window").String(),
		FocusAutoTrack:     viper.GetBool("focus.auto_track"),
		FocusWelcomeBack:   viper.GetBool("focus.welcome_back"),
		FocusIdleThreshold: viper.GetDuration("focus.idle_threshold").String(),
		DaemonAddr:         viper.GetString("daemon.addr"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "POMO_STATE_DIR"},
	{Key: "db_path", EnvVar: "POMO_DB_PATH"},
	{Key: "snapshot_path", EnvVar: "POMO_SNAPSHOT_PATH"},
	{Key: "reminders_file", EnvVar: "POMO_REMINDERS_FILE"},
	{Key: "timer.work_minutes", EnvVar: "POMO_TIMER_WORK_MINUTES"},
	{Key: "timer.rest_minutes", EnvVar: "POMO_TIMER_REST_MINUTES"},
	{Key: "scheduler.poll_interval", EnvVar: "POMO_SCHEDULER_POLL_INTERVAL"},
	{Key: "notify.backend", EnvVar: "POMO_NOTIFY_BACKEND"},
	{Key: "notify.dedup_window", EnvVar: "POMO_NOTIFY_DEDUP_WINDOW"},
	{Key: "notify.dedup_horizon", EnvVar: "POMO_NOTIFY_DEDUP_HORIZON"},
	{Key: "focus.history_limit", EnvVar: "POMO_FOCUS_HISTORY_LIMIT"},
	{Key: "focus.auto_track", EnvVar: "POMO_FOCUS_AUTO_TRACK"},
	{Key: "focus.welcome_back", EnvVar: "POMO_FOCUS_WELCOME_BACK"},
	{Key: "focus.idle_threshold", EnvVar: "POMO_FOCUS_IDLE_THRESHOLD"},
	{Key: "daemon.addr", EnvVar: "POMO_DAEMON_ADDR"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	inFile := map[string]bool{}
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
		inFile = configFileKeys(cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, k := range configKeys {
		table.Append([]string{k.Key, fmt.Sprint(viper.Get(k.Key)), k.source(inFile)})
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, p := range configProblems() {
		ui.Warning("%s", p)
	}
	return nil
}

func (k configKeyInfo) source(inFile map[string]bool) string {
	if _, ok := os.LookupEnv(k.EnvVar); ok {
		return fmt.Sprintf("(env: %s)", k.EnvVar)
	}
	if inFile[k.Key] {
		return "(file)"
	}
	return "(default)"
}

// configFileKeys returns the dotted keys set in the YAML file at path.
// An unreadable or malformed file yields an empty set.
func configFileKeys(path string) map[string]bool {
	keys := map[string]bool{}
	data, err := os.ReadFile(path)
	if err != nil {
		return keys
	}
	var doc map[string]any
	if yaml.Unmarshal(data, &doc) != nil {
		return keys
	}

	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for name, val := range m {
			if prefix != "" {
				name = prefix + "." + name
			}
			if child, ok := val.(map[string]any); ok {
				walk(name, child)
				continue
			}
			keys[name] = true
		}
	}
	walk("", doc)
	return keys
}

// configProblems lists settings that pomo will ignore or fail on at runtime.
func configProblems() []string {
	var problems []string
	for _, key := range []string{"timer.work_minutes", "timer.rest_minutes"} {
		if viper.GetInt(key) <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive number of minutes; the default is used", key))
		}
	}
	switch b := viper.GetString("notify.backend"); b {
	case "desktop", "console", "none":
	default:
		problems = append(problems, fmt.Sprintf("notify.backend %q is unknown; desktop is used", b))
	}
	for _, key := range []string{"scheduler.poll_interval", "notify.dedup_window", "notify.dedup_horizon", "focus.idle_threshold"} {
		if _, err := time.ParseDuration(viper.GetString(key)); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if _, _, err := net.SplitHostPort(viper.GetString("daemon.addr")); err != nil {
		problems = append(problems, fmt.Sprintf("daemon.addr: %v", err))
	}
	return problems
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; export EDITOR=vim or similar")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'pomo config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
