// Package scheduler is the background poller. It completes overdue timer
// phases and fires reminders while no foreground context is running.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/notify"
	"github.com/joescharf/pomo/internal/store"
	"github.com/joescharf/pomo/internal/timer"
)

// DefaultPollInterval matches how often the timer is checked.
const DefaultPollInterval = 5 * time.Second

// FocusEnder ends the active focus session when a rest phase completes.
type FocusEnder interface {
	EndIfActive(ctx context.Context)
}

// Config holds the scheduler's collaborators.
type Config struct {
	Timer        store.TimerStore
	Ledger       store.CycleLedger
	Reminders    store.ReminderStore
	Notifier     *notify.Dispatcher
	Clock        clock.Clock
	PollInterval time.Duration
	Writer       string
	Focus        FocusEnder
}

type reminder struct {
	spec     models.ReminderSpec
	schedule cron.Schedule
}

// Scheduler keeps its own copy of the timer and the reminder list.
type Scheduler struct {
	cfg    Config
	parser cron.Parser
	wake   chan struct{}

	mu        sync.Mutex
	timer     models.TimerState
	reminders []reminder
	lastTick  time.Time
	listeners []func(models.TimerState)
}

// New returns a Scheduler. Call LoadReminders before Run to pick up the
// persisted reminder list.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Scheduler{
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		wake:   make(chan struct{}, 1),
		timer:  models.IdleState(),
	}
}

// OnTimerChange registers fn to be called whenever the scheduler's timer
// copy changes.
func (s *Scheduler) OnTimerChange(fn func(models.TimerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Run polls until ctx is done. Wake triggers an immediate extra poll.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Dur("poll_interval", s.cfg.PollInterval).Int("reminders", len(s.Reminders())).Msg("Scheduler started")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx, s.cfg.Clock.Now())
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduler stopping")
			return nil
		case <-ticker.C:
		case <-s.wake:
		}
		s.Tick(ctx, s.cfg.Clock.Now())
	}
}

// Wake asks Run to poll now. It never blocks.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Tick runs one poll at now: timer first, then reminders.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.checkTimer(ctx, now)
	s.checkReminders(ctx, now)

	s.mu.Lock()
	s.lastTick = now
	s.mu.Unlock()
}

func (s *Scheduler) checkTimer(ctx context.Context, now time.Time) {
	s.mu.Lock()
	changed := false
	if s.cfg.Timer != nil {
		stored, found, err := s.cfg.Timer.LoadTimer(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Scheduler cannot load timer")
		} else if found && (stored.NewerThan(s.timer) || s.timer.UpdatedAt.IsZero()) {
			s.timer = normalizeSnapshot(stored, "store")
			changed = true
		}
	}

	next, events := timer.Reconcile(s.timer, now)
	if len(events) > 0 {
		next.Writer = s.cfg.Writer
		s.timer = next
		changed = true
		if s.cfg.Timer != nil {
			if err := s.cfg.Timer.SaveTimer(ctx, next); err != nil {
				log.Warn().Err(err).Msg("Scheduler cannot persist timer")
			}
		}
	}
	snapshot := s.timer.Clone()
	listeners := append([]func(models.TimerState){}, s.listeners...)
	s.mu.Unlock()

	for _, ev := range events {
		log.Info().Str("phase", string(ev.Phase)).Str("cycle", ev.CycleID).Msg("Phase completed in background")
		if ev.Phase == models.ModeWork && s.cfg.Ledger != nil {
			if _, err := s.cfg.Ledger.RecordCompletedCycle(ctx, ev.CycleID, ev.At); err != nil {
				log.Warn().Err(err).Str("cycle", ev.CycleID).Msg("Cannot record completed cycle")
			}
		}
		s.cfg.Notifier.Dispatch(ctx, notify.PhaseComplete(ev))
		if ev.Phase == models.ModeRest && s.cfg.Focus != nil {
			s.cfg.Focus.EndIfActive(ctx)
		}
	}
	if changed {
		for _, fn := range listeners {
			fn(snapshot)
		}
	}
}

func (s *Scheduler) checkReminders(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)
	s.mu.Lock()
	var due []models.ReminderSpec
	for _, r := range s.reminders {
		if r.schedule.Next(minute.Add(-time.Second)).Equal(minute) {
			due = append(due, r.spec)
		}
	}
	s.mu.Unlock()

	for _, spec := range due {
		s.cfg.Notifier.Dispatch(ctx, notify.Reminder(spec, now))
	}
}

// PushTimer hands the scheduler a fresh snapshot without waiting for the
// next poll. Older snapshots are ignored.
func (s *Scheduler) PushTimer(st models.TimerState) bool {
	s.mu.Lock()
	adopt := st.NewerThan(s.timer) || s.timer.UpdatedAt.IsZero()
	if adopt {
		s.timer = normalizeSnapshot(st, "push")
	}
	s.mu.Unlock()

	if adopt {
		s.Wake()
	}
	return adopt
}

// LoadReminders reads the persisted reminder list.
func (s *Scheduler) LoadReminders(ctx context.Context) error {
	if s.cfg.Reminders == nil {
		return nil
	}
	specs, err := s.cfg.Reminders.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	s.setReminders(specs)
	return nil
}

// PushReminders replaces the reminder list and persists it. Specs whose
// time or weekdays cannot be scheduled are dropped and reported.
func (s *Scheduler) PushReminders(ctx context.Context, specs []models.ReminderSpec) ([]string, error) {
	rejected := s.setReminders(specs)
	if s.cfg.Reminders != nil {
		if err := s.cfg.Reminders.ReplaceReminders(ctx, specs); err != nil {
			return rejected, fmt.Errorf("persist reminders: %w", err)
		}
	}
	s.Wake()
	return rejected, nil
}

func (s *Scheduler) setReminders(specs []models.ReminderSpec) []string {
	var (
		compiled []reminder
		rejected []string
	)
	for _, spec := range specs {
		sched, err := s.compile(spec)
		if err != nil {
			log.Warn().Err(err).Str("key", spec.Key).Msg("Skipping reminder")
			rejected = append(rejected, spec.Key)
			continue
		}
		if sched == nil {
			continue
		}
		compiled = append(compiled, reminder{spec: spec, schedule: sched})
	}

	s.mu.Lock()
	s.reminders = compiled
	s.mu.Unlock()
	log.Info().Int("reminders", len(compiled)).Msg("Reminder list updated")
	return rejected
}

// compile turns a reminder into a cron schedule. A reminder with no weekdays
// never fires and yields a nil schedule.
func (s *Scheduler) compile(spec models.ReminderSpec) (cron.Schedule, error) {
	expr, err := CronExpr(spec)
	if err != nil || expr == "" {
		return nil, err
	}
	return s.parser.Parse(expr)
}

// CronExpr converts "HH:MM" plus weekdays into a five-field cron expression.
func CronExpr(spec models.ReminderSpec) (string, error) {
	hh, mm, ok := strings.Cut(spec.TimeOfDay, ":")
	if !ok {
		return "", fmt.Errorf("time %q: want HH:MM", spec.TimeOfDay)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("time %q: bad hour", spec.TimeOfDay)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("time %q: bad minute", spec.TimeOfDay)
	}
	if len(spec.Weekdays) == 0 {
		return "", nil
	}
	days := make([]string, 0, len(spec.Weekdays))
	for _, d := range spec.Weekdays {
		if d < 0 || d > 6 {
			return "", fmt.Errorf("weekday %d out of range 0-6", d)
		}
		days = append(days, strconv.Itoa(d))
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(days, ",")), nil
}

// Timer returns the scheduler's copy of the timer.
func (s *Scheduler) Timer() models.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer.Clone()
}

// Reminders returns the active reminder list.
func (s *Scheduler) Reminders() []models.ReminderSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ReminderSpec, len(s.reminders))
	for i, r := range s.reminders {
		out[i] = r.spec
	}
	return out
}

// LastTick returns when the scheduler last polled.
func (s *Scheduler) LastTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

func normalizeSnapshot(st models.TimerState, source string) models.TimerState {
	out, ok := timer.Normalize(st)
	if !ok {
		log.Warn().Str("source", source).Str("mode", string(st.Mode)).Str("writer", st.Writer).
			Msg("Discarding inconsistent timer snapshot")
	}
	return out
}
