package models

import "time"

// NotificationKind classifies what triggered a notification.
type NotificationKind string

const (
	NotificationPhaseComplete    NotificationKind = "phase_complete"
	NotificationReminder         NotificationKind = "reminder"
	NotificationFocusInterrupted NotificationKind = "focus_interrupted"
	NotificationFocusWelcomeBack NotificationKind = "focus_welcome_back"
)

// Notification is a request to show something to the user.
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	Title    string           `json:"title"`
	Body     string           `json:"body"`
	DedupKey string           `json:"dedupKey"`
	Tag      string           `json:"tag,omitempty"`
}

// DedupEntry records when a dedup key last produced a delivered notification.
type DedupEntry struct {
	Key         string    `json:"key"`
	LastFiredAt time.Time `json:"lastFiredAt"`
}
