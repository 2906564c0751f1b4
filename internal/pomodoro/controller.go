// Package pomodoro owns the foreground timer context: it applies user
// commands, persists every transition and fires completions at the deadline.
package pomodoro

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/notify"
	"github.com/joescharf/pomo/internal/store"
	"github.com/joescharf/pomo/internal/timer"
)

// FocusLink lets the timer drive focus sessions: a work phase starts one and
// the end of rest closes it.
type FocusLink interface {
	StartIfIdle(ctx context.Context)
	EndIfActive(ctx context.Context)
}

// Config holds the collaborators of a Controller. Only Store is required.
type Config struct {
	Store    store.TimerStore
	Ledger   store.CycleLedger
	Notifier *notify.Dispatcher
	Clock    clock.Clock
	Settings models.Settings
	Writer   string // identity stamped on every snapshot this context writes
	Focus    FocusLink
}

// Result is the outcome of a command. Applied is false when the command is
// not valid in the current state; that is not an error.
type Result struct {
	Applied bool                `json:"applied"`
	Display models.TimerDisplay `json:"display"`
}

// Controller is one execution context's view of the timer.
type Controller struct {
	store    store.TimerStore
	ledger   store.CycleLedger
	notifier *notify.Dispatcher
	clock    clock.Clock
	settings models.Settings
	writer   string
	focus    FocusLink

	mu        sync.Mutex
	state     models.TimerState
	pending   clock.Timer
	completed int // local count used when there is no ledger
}

// New returns a Controller in the idle state. Call Load to adopt the stored
// cycle.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if !cfg.Settings.Valid() {
		cfg.Settings = models.DefaultSettings()
	}
	return &Controller{
		store:    cfg.Store,
		ledger:   cfg.Ledger,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		settings: cfg.Settings,
		writer:   cfg.Writer,
		focus:    cfg.Focus,
		state:    models.IdleState(),
	}
}

// Load reads the stored snapshot and reconciles it against the clock.
func (c *Controller) Load(ctx context.Context) models.TimerDisplay {
	c.Sync(ctx)
	return c.Display(ctx)
}

// Sync adopts the stored snapshot when it is newer than ours, then
// reconciles. Completions found here are handled like any other.
func (c *Controller) Sync(ctx context.Context) {
	c.mu.Lock()
	if c.store != nil {
		stored, found, err := c.store.LoadTimer(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Cannot load timer state")
		} else if found && (stored.NewerThan(c.state) || c.state.UpdatedAt.IsZero()) {
			c.state = adoptStored(stored)
		}
	}
	events := c.reconcileLocked(ctx, c.clock.Now())
	c.armLocked()
	c.mu.Unlock()

	c.handle(ctx, events)
}

// Start begins a work phase. Valid only from idle.
func (c *Controller) Start(ctx context.Context) Result {
	return c.command(ctx, "start", func(s models.TimerState, now time.Time) (models.TimerState, bool) {
		return timer.Start(s, c.settings, store.NewID(), now)
	})
}

// Pause freezes the running phase.
func (c *Controller) Pause(ctx context.Context) Result {
	return c.command(ctx, "pause", timer.Pause)
}

// Resume continues a paused phase.
func (c *Controller) Resume(ctx context.Context) Result {
	return c.command(ctx, "resume", timer.Resume)
}

// Reset discards the cycle. Always applied.
func (c *Controller) Reset(ctx context.Context) Result {
	return c.command(ctx, "reset", timer.Reset)
}

type transition func(s models.TimerState, now time.Time) (models.TimerState, bool)

func (c *Controller) command(ctx context.Context, name string, fn transition) Result {
	c.mu.Lock()
	now := c.clock.Now()
	events := c.reconcileLocked(ctx, now)

	prev := c.state
	next, ok := fn(c.state, now)
	if ok {
		next.Writer = c.writer
		c.state = next
		c.persistLocked(ctx)
		log.Info().Str("command", name).Str("mode", string(next.Mode)).Str("cycle", next.CycleID).Msg("Timer transition")
	} else {
		log.Debug().Str("command", name).Str("mode", string(c.state.Mode)).Msg("Timer command ignored")
	}
	c.armLocked()
	c.mu.Unlock()

	c.handle(ctx, events)
	if ok && c.focus != nil && prev.IsIdle() && next.Mode == models.ModeWork {
		c.focus.StartIfIdle(ctx)
	}
	return Result{Applied: ok, Display: c.Display(ctx)}
}

// reconcileLocked applies completions that are due at now. Caller holds mu.
func (c *Controller) reconcileLocked(ctx context.Context, now time.Time) []timer.Event {
	next, events := timer.Reconcile(c.state, now)
	if len(events) == 0 {
		if next.Mode != c.state.Mode {
			// Normalize collapsed an inconsistent snapshot.
			c.state = next
		}
		return nil
	}
	next.Writer = c.writer
	c.state = next
	c.persistLocked(ctx)
	return events
}

// persistLocked writes the full snapshot. Failures are logged; the in-memory
// state stays authoritative for this context.
func (c *Controller) persistLocked(ctx context.Context) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveTimer(ctx, c.state); err != nil {
		log.Warn().Err(err).Msg("Cannot persist timer state")
	}
}

// armLocked cancels any pending deadline check and schedules a new one for
// the running phase. Caller holds mu.
func (c *Controller) armLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if !c.state.Running() {
		return
	}
	d := c.state.Deadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	c.pending = c.clock.AfterFunc(d, func() {
		c.Sync(context.Background())
	})
}

// handle acts on completion events outside the lock.
func (c *Controller) handle(ctx context.Context, events []timer.Event) {
	for _, ev := range events {
		log.Info().Str("phase", string(ev.Phase)).Str("next", string(ev.Next)).Str("cycle", ev.CycleID).Msg("Phase complete")
		if ev.Phase == models.ModeWork {
			c.recordCycle(ctx, ev)
		}
		c.notifier.Dispatch(ctx, notify.PhaseComplete(ev))
		if ev.Phase == models.ModeRest && c.focus != nil {
			c.focus.EndIfActive(ctx)
		}
	}
}

func (c *Controller) recordCycle(ctx context.Context, ev timer.Event) {
	if c.ledger == nil {
		c.mu.Lock()
		c.completed++
		c.mu.Unlock()
		return
	}
	if _, err := c.ledger.RecordCompletedCycle(ctx, ev.CycleID, ev.At); err != nil {
		log.Warn().Err(err).Str("cycle", ev.CycleID).Msg("Cannot record completed cycle")
		c.mu.Lock()
		c.completed++
		c.mu.Unlock()
	}
}

// State returns a copy of the current snapshot.
func (c *Controller) State() models.TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SessionCount returns the number of completed work phases.
func (c *Controller) SessionCount(ctx context.Context) int {
	c.mu.Lock()
	local := c.completed
	c.mu.Unlock()
	if c.ledger == nil {
		return local
	}
	n, err := c.ledger.CountCompletedCycles(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot count completed cycles")
		return local
	}
	return n + local
}

// Display computes the view for the current instant without changing state.
func (c *Controller) Display(ctx context.Context) models.TimerDisplay {
	c.mu.Lock()
	s := c.state.Clone()
	now := c.clock.Now()
	c.mu.Unlock()

	return models.TimerDisplay{
		Mode:             s.Mode,
		RemainingSeconds: timer.RemainingSeconds(s, now),
		IsPaused:         s.IsPaused,
		SessionCount:     c.SessionCount(ctx),
		Deadline:         s.Deadline,
	}
}

// Watch calls fn with a fresh display every interval until ctx is done.
// Each tick re-syncs from the store, so changes made by other contexts show
// up and overdue phases complete.
func (c *Controller) Watch(ctx context.Context, interval time.Duration, fn func(models.TimerDisplay)) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(c.Display(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sync(ctx)
			fn(c.Display(ctx))
		}
	}
}

// Close cancels the pending deadline check.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// adoptStored normalizes a snapshot read from storage. One that does not
// describe a consistent state is replaced by idle and logged.
func adoptStored(stored models.TimerState) models.TimerState {
	st, ok := timer.Normalize(stored)
	if !ok {
		log.Warn().Str("mode", string(stored.Mode)).Str("writer", stored.Writer).
			Msg("Discarding inconsistent timer snapshot")
	}
	return st
}
