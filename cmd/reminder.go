package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/scheduler"
)

var reminderFile string

var reminderCmd = &cobra.Command{
	Use:   "reminder",
	Short: "Manage habit reminders fired by the daemon",
	Long: `Manage habit reminders. Reminders live in a YAML file:

  reminders:
    - key: stretch
      label: Stretch
      time: "10:30"
      weekdays: [1, 2, 3, 4, 5]   # 0 = Sunday

'pomo reminder sync' replaces the stored list and pushes it to a running
daemon. Running bare 'pomo reminder' is the same as 'pomo reminder list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reminderListRun(cmdContext(cmd))
	},
}

var reminderSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the reminder list from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reminderSyncRun(cmdContext(cmd))
	},
}

var reminderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reminderListRun(cmdContext(cmd))
	},
}

func init() {
	reminderSyncCmd.Flags().StringVarP(&reminderFile, "file", "f", "", "Reminders file (default reminders_file from config)")

	reminderCmd.AddCommand(reminderSyncCmd)
	reminderCmd.AddCommand(reminderListCmd)
	rootCmd.AddCommand(reminderCmd)
}

type remindersFile struct {
	Reminders []models.ReminderSpec `yaml:"reminders"`
}

// readReminders parses a reminders file. Entries without a key or label are
// an error; bad times are kept and reported by validation.
func readReminders(path string) ([]models.ReminderSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reminders file: %w", err)
	}
	var f remindersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	seen := make(map[string]bool, len(f.Reminders))
	for i, r := range f.Reminders {
		if r.Key == "" || r.Label == "" {
			return nil, fmt.Errorf("reminder %d: key and label are required", i+1)
		}
		if seen[r.Key] {
			return nil, fmt.Errorf("reminder %q: duplicate key", r.Key)
		}
		seen[r.Key] = true
	}
	return f.Reminders, nil
}

func reminderSyncRun(ctx context.Context) error {
	path := reminderFile
	if path == "" {
		path = viper.GetString("reminders_file")
	}
	specs, err := readReminders(path)
	if err != nil {
		return err
	}

	for _, r := range specs {
		if _, err := scheduler.CronExpr(r); err != nil {
			ui.Warning("Reminder %q will never fire: %v", r.Key, err)
		}
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.ReplaceReminders(ctx, specs); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	ui.Success("Saved %d reminders", len(specs))

	res, err := daemonClient().PushReminders(ctx, specs)
	if err != nil {
		ui.Info("Daemon not reachable; it will load the list on next start")
		ui.VerboseLog("push reminders: %v", err)
		return nil
	}
	ui.Success("Daemon accepted %d reminders", res.Accepted)
	return nil
}

func reminderListRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	specs, err := s.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	if len(specs) == 0 {
		ui.Info("No reminders. Add some with 'pomo reminder sync --file reminders.yaml'")
		return nil
	}

	table := ui.Table([]string{"Key", "Label", "Time", "Days", "Schedule"})
	for _, r := range specs {
		sched, err := scheduler.CronExpr(r)
		switch {
		case err != nil:
			sched = "invalid"
		case sched == "":
			sched = "never"
		}
		table.Append([]string{r.Key, r.Label, r.TimeOfDay, weekdayNames(r.Weekdays), sched})
	}
	return table.Render()
}

func weekdayNames(days []int) string {
	if len(days) == 0 {
		return "-"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			names = append(names, strconv.Itoa(d))
			continue
		}
		names = append(names, time.Weekday(d).String()[:3])
	}
	return strings.Join(names, ",")
}
