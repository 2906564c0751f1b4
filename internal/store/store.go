package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/pomo/internal/models"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// TimerStore persists the single TimerState record. Every write replaces the
// whole record; found is false when nothing usable is stored.
type TimerStore interface {
	LoadTimer(ctx context.Context) (state models.TimerState, found bool, err error)
	SaveTimer(ctx context.Context, state models.TimerState) error
}

// CycleLedger counts completed work phases once per cycle, no matter how
// many contexts observe the completion.
type CycleLedger interface {
	RecordCompletedCycle(ctx context.Context, cycleID string, at time.Time) (bool, error)
	CountCompletedCycles(ctx context.Context) (int, error)
}

// ReminderStore holds the reminder list pushed by habit management.
type ReminderStore interface {
	ReplaceReminders(ctx context.Context, reminders []models.ReminderSpec) error
	ListReminders(ctx context.Context) ([]models.ReminderSpec, error)
}

// FocusStore persists focus sessions and their aggregate stats.
type FocusStore interface {
	LoadActiveFocusSession(ctx context.Context) (*models.FocusSession, error)
	SaveFocusSession(ctx context.Context, session *models.FocusSession) error
	DeleteFocusSession(ctx context.Context, id string) error
	ListFocusSessions(ctx context.Context, limit int) ([]*models.FocusSession, error)
	TrimFocusHistory(ctx context.Context, keep int) (int64, error)
	LoadFocusStats(ctx context.Context) (models.FocusStats, error)
	SaveFocusStats(ctx context.Context, stats models.FocusStats) error
}

// DedupStore backs notification de-duplication.
type DedupStore interface {
	// ClaimNotification records now as the fire time for key unless the key
	// fired less than window ago. It reports whether the caller won the claim.
	ClaimNotification(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error)
	PurgeNotifications(ctx context.Context, olderThan time.Time) (int64, error)
	ListDedupEntries(ctx context.Context) ([]models.DedupEntry, error)
}

// Store defines the persistence interface for pomo.
type Store interface {
	TimerStore
	CycleLedger
	ReminderStore
	FocusStore
	DedupStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
