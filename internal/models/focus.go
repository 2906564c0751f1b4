package models

import "time"

// Interruption is a stretch of a focus session spent away from the app.
type Interruption struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Duration  int        `json:"duration"` // seconds, set when closed
}

// Open reports whether the interruption is still ongoing.
func (i Interruption) Open() bool {
	return i.EndTime == nil
}

// FocusSession is one user-initiated attention tracking window.
type FocusSession struct {
	ID            string         `json:"id"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime,omitempty"`
	TotalTime     int            `json:"totalTime"` // net focus seconds
	Interruptions []Interruption `json:"interruptions"`
	IsActive      bool           `json:"isActive"`
}

// OpenInterruption returns the index of the ongoing interruption, or -1.
func (s *FocusSession) OpenInterruption() int {
	for i := len(s.Interruptions) - 1; i >= 0; i-- {
		if s.Interruptions[i].Open() {
			return i
		}
	}
	return -1
}

// FocusStats aggregates completed focus sessions.
type FocusStats struct {
	TotalFocusTime       int     `json:"totalFocusTime"`
	TotalInterruptions   int     `json:"totalInterruptions"`
	LongestStreak        int     `json:"longestStreak"`      // longest single-session focus, seconds
	LastSessionSeconds   int     `json:"lastSessionSeconds"` // focus time of the most recent session
	SessionsCompleted    int     `json:"sessionsCompleted"`
	AverageSessionLength float64 `json:"averageSessionLength"`
	DayStreak            int     `json:"dayStreak"`      // consecutive days with a completed session
	LastSessionDay       string  `json:"lastSessionDay"` // YYYY-MM-DD
}

// FocusDisplay is what a UI renders for focus mode.
type FocusDisplay struct {
	IsFocusModeActive   bool           `json:"isFocusModeActive"`
	SessionID           string         `json:"sessionId,omitempty"`
	IsVisible           bool           `json:"isVisible"`
	CurrentFocusSeconds int            `json:"currentFocusSeconds"`
	TimeAwaySeconds     int            `json:"timeAwaySeconds"`
	Interruptions       []Interruption `json:"interruptions"`
}
