package models

import "time"

// Mode is the phase of a Pomodoro cycle.
type Mode string

const (
	ModeIdle Mode = "idle"
	ModeWork Mode = "work"
	ModeRest Mode = "rest"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdle, ModeWork, ModeRest:
		return true
	}
	return false
}

// TimerKey is the logical key under which the active cycle is stored.
const TimerKey = "current-timer"

// Settings are the phase lengths of a cycle, fixed once the cycle starts.
type Settings struct {
	WorkSeconds int `json:"workSeconds"`
	RestSeconds int `json:"restSeconds"`
}

// Valid reports whether both phases have a positive length.
func (s Settings) Valid() bool {
	return s.WorkSeconds > 0 && s.RestSeconds > 0
}

// DefaultSettings returns the classic 25/5 cycle.
func DefaultSettings() Settings {
	return Settings{WorkSeconds: 25 * 60, RestSeconds: 5 * 60}
}

// TimerState is the single record describing the active cycle.
//
// Exactly one of Deadline != nil, IsPaused, or Mode == ModeIdle determines
// how remaining time is computed.
type TimerState struct {
	Mode             Mode       `json:"mode"`
	CycleID          string     `json:"cycleId,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	IsPaused         bool       `json:"isPaused"`
	RemainingOnPause int        `json:"remainingOnPause,omitempty"` // seconds
	Settings         Settings   `json:"settings"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Writer           string     `json:"writer,omitempty"` // context that wrote this snapshot
}

// IdleState returns the zero-cycle state.
func IdleState() TimerState {
	return TimerState{Mode: ModeIdle}
}

// IsIdle reports whether no cycle is in flight.
func (s TimerState) IsIdle() bool {
	return s.Mode == ModeIdle
}

// Running reports whether a phase is counting down.
func (s TimerState) Running() bool {
	return s.Mode != ModeIdle && !s.IsPaused && s.Deadline != nil
}

// Clone returns a deep copy.
func (s TimerState) Clone() TimerState {
	out := s
	if s.Deadline != nil {
		d := *s.Deadline
		out.Deadline = &d
	}
	return out
}

// NewerThan reports whether s was written after other.
func (s TimerState) NewerThan(other TimerState) bool {
	return s.UpdatedAt.After(other.UpdatedAt)
}

// TimerDisplay is what a UI renders for the timer.
type TimerDisplay struct {
	Mode             Mode       `json:"mode"`
	RemainingSeconds int        `json:"remainingSeconds"`
	IsPaused         bool       `json:"isPaused"`
	SessionCount     int        `json:"sessionCount"`
	Deadline         *time.Time `json:"deadline,omitempty"`
}
