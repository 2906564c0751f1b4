// Package timer implements the Pomodoro cycle as pure transitions over
// models.TimerState. Nothing here touches storage or the wall clock; callers
// pass "now" explicitly so every execution context derives the same answer
// from the same snapshot.
package timer

import (
	"time"

	"github.com/joescharf/pomo/internal/models"
)

// EventKind identifies a side effect produced by a transition.
type EventKind string

const (
	EventPhaseComplete EventKind = "phase_complete"
)

// Event describes something the caller should act on (usually notify).
type Event struct {
	Kind    EventKind
	Phase   models.Mode // phase that ended
	Next    models.Mode // phase that follows
	CycleID string
	DueAt   time.Time // deadline that passed
	At      time.Time // when the completion was observed
}

// maxCompletions bounds the reconcile loop. A work completion always opens a
// rest phase ending in the future, so at most one transition happens per call.
const maxCompletions = 2

// ceilSeconds rounds a positive duration up to whole seconds.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// RemainingSeconds computes what a display should show for s at now.
func RemainingSeconds(s models.TimerState, now time.Time) int {
	switch {
	case s.IsIdle():
		return 0
	case s.IsPaused:
		return s.RemainingOnPause
	case s.Deadline == nil:
		return 0
	default:
		return ceilSeconds(s.Deadline.Sub(now))
	}
}

// Normalize validates a stored snapshot. Anything that does not describe a
// consistent state collapses to idle and ok is false.
func Normalize(s models.TimerState) (models.TimerState, bool) {
	if !s.Mode.Valid() {
		return idleFrom(s), false
	}
	if s.IsIdle() {
		if s.Deadline != nil || s.IsPaused || s.RemainingOnPause != 0 || s.CycleID != "" {
			return idleFrom(s), false
		}
		return s, true
	}
	if !s.Settings.Valid() {
		return idleFrom(s), false
	}
	if s.IsPaused {
		if s.Deadline != nil || s.RemainingOnPause < 0 {
			return idleFrom(s), false
		}
		return s, true
	}
	if s.Deadline == nil {
		return idleFrom(s), false
	}
	return s, true
}

func idleFrom(s models.TimerState) models.TimerState {
	out := models.IdleState()
	out.UpdatedAt = s.UpdatedAt
	out.Writer = s.Writer
	return out
}

// Start begins a work phase. Only valid from idle.
func Start(s models.TimerState, settings models.Settings, cycleID string, now time.Time) (models.TimerState, bool) {
	if !s.IsIdle() || !settings.Valid() {
		return s, false
	}
	deadline := now.Add(time.Duration(settings.WorkSeconds) * time.Second)
	return models.TimerState{
		Mode:      models.ModeWork,
		CycleID:   cycleID,
		Deadline:  &deadline,
		Settings:  settings,
		UpdatedAt: now,
	}, true
}

// Pause freezes a running phase, remembering the whole seconds left.
func Pause(s models.TimerState, now time.Time) (models.TimerState, bool) {
	if !s.Running() {
		return s, false
	}
	out := s.Clone()
	out.RemainingOnPause = ceilSeconds(s.Deadline.Sub(now))
	out.Deadline = nil
	out.IsPaused = true
	out.UpdatedAt = now
	return out, true
}

// Resume restarts a paused phase with a fresh deadline.
func Resume(s models.TimerState, now time.Time) (models.TimerState, bool) {
	if s.IsIdle() || !s.IsPaused {
		return s, false
	}
	out := s.Clone()
	deadline := now.Add(time.Duration(s.RemainingOnPause) * time.Second)
	out.Deadline = &deadline
	out.IsPaused = false
	out.RemainingOnPause = 0
	out.UpdatedAt = now
	return out, true
}

// Reset discards the in-flight cycle. Valid from any state.
func Reset(s models.TimerState, now time.Time) (models.TimerState, bool) {
	out := models.IdleState()
	out.UpdatedAt = now
	return out, true
}

// Complete applies the natural-completion transition if the running phase's
// deadline has passed. Applying it to a state that already moved on is a no-op.
func Complete(s models.TimerState, now time.Time) (models.TimerState, *Event, bool) {
	if !s.Running() || s.Deadline.After(now) {
		return s, nil, false
	}

	ev := &Event{
		Kind:    EventPhaseComplete,
		Phase:   s.Mode,
		CycleID: s.CycleID,
		DueAt:   *s.Deadline,
		At:      now,
	}

	switch s.Mode {
	case models.ModeWork:
		out := s.Clone()
		deadline := now.Add(time.Duration(s.Settings.RestSeconds) * time.Second)
		out.Mode = models.ModeRest
		out.Deadline = &deadline
		out.UpdatedAt = now
		ev.Next = models.ModeRest
		return out, ev, true
	case models.ModeRest:
		out := models.IdleState()
		out.UpdatedAt = now
		ev.Next = models.ModeIdle
		return out, ev, true
	}
	return s, nil, false
}

// Reconcile recomputes the truth for s at now from its deadline alone,
// applying any completions that happened while nobody was watching.
// Calling it again on its own output at the same instant changes nothing.
func Reconcile(s models.TimerState, now time.Time) (models.TimerState, []Event) {
	s, _ = Normalize(s)

	var events []Event
	for i := 0; i < maxCompletions; i++ {
		if RemainingSeconds(s, now) > 0 || !s.Running() {
			break
		}
		next, ev, ok := Complete(s, now)
		if !ok {
			break
		}
		s = next
		events = append(events, *ev)
	}
	return s, events
}
