package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joescharf/pomo/internal/models"
)

// MemoryStore is a process-local Store. It backs tests and stands in for
// SQLite when the database cannot be opened.
type MemoryStore struct {
	mu        sync.Mutex
	timer     *models.TimerState
	cycles    map[string]time.Time
	reminders []models.ReminderSpec
	sessions  map[string]*models.FocusSession
	stats     models.FocusStats
	dedup     map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cycles:   make(map[string]time.Time),
		sessions: make(map[string]*models.FocusSession),
		dedup:    make(map[string]time.Time),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) LoadTimer(context.Context) (models.TimerState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer == nil {
		return models.IdleState(), false, nil
	}
	return m.timer.Clone(), true, nil
}

func (m *MemoryStore) SaveTimer(_ context.Context, st models.TimerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil && m.timer.NewerThan(st) {
		return nil
	}
	c := st.Clone()
	m.timer = &c
	return nil
}

func (m *MemoryStore) RecordCompletedCycle(_ context.Context, cycleID string, at time.Time) (bool, error) {
	if cycleID == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cycles[cycleID]; ok {
		return false, nil
	}
	m.cycles[cycleID] = at
	return true, nil
}

func (m *MemoryStore) CountCompletedCycles(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cycles), nil
}

func (m *MemoryStore) ReplaceReminders(_ context.Context, reminders []models.ReminderSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append([]models.ReminderSpec(nil), reminders...)
	return nil
}

func (m *MemoryStore) ListReminders(context.Context) ([]models.ReminderSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ReminderSpec(nil), m.reminders...), nil
}

func copySession(fs *models.FocusSession) *models.FocusSession {
	c := *fs
	c.Interruptions = append([]models.Interruption(nil), fs.Interruptions...)
	return &c
}

func (m *MemoryStore) LoadActiveFocusSession(context.Context) (*models.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *models.FocusSession
	for _, fs := range m.sessions {
		if fs.IsActive && (active == nil || fs.StartTime.After(active.StartTime)) {
			active = fs
		}
	}
	if active == nil {
		return nil, nil
	}
	return copySession(active), nil
}

func (m *MemoryStore) SaveFocusSession(_ context.Context, fs *models.FocusSession) error {
	if fs.ID == "" {
		fs.ID = NewID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[fs.ID] = copySession(fs)
	return nil
}

func (m *MemoryStore) DeleteFocusSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("focus session %s: %w", id, ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}

// completedLocked returns completed sessions, newest first. Caller holds mu.
func (m *MemoryStore) completedLocked() []*models.FocusSession {
	var out []*models.FocusSession
	for _, fs := range m.sessions {
		if !fs.IsActive {
			out = append(out, fs)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

func (m *MemoryStore) ListFocusSessions(_ context.Context, limit int) ([]*models.FocusSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	completed := m.completedLocked()
	if limit > 0 && len(completed) > limit {
		completed = completed[:limit]
	}
	out := make([]*models.FocusSession, len(completed))
	for i, fs := range completed {
		out[i] = copySession(fs)
	}
	return out, nil
}

func (m *MemoryStore) TrimFocusHistory(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	completed := m.completedLocked()
	var removed int64
	for _, fs := range completed[min(keep, len(completed)):] {
		delete(m.sessions, fs.ID)
		removed++
	}
	return removed, nil
}

func (m *MemoryStore) LoadFocusStats(context.Context) (models.FocusStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

func (m *MemoryStore) SaveFocusStats(_ context.Context, st models.FocusStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = st
	return nil
}

func (m *MemoryStore) ClaimNotification(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.dedup[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	m.dedup[key] = now
	return true, nil
}

func (m *MemoryStore) PurgeNotifications(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.dedup {
		if at.Before(olderThan) {
			delete(m.dedup, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListDedupEntries(context.Context) ([]models.DedupEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]models.DedupEntry, 0, len(m.dedup))
	for k, at := range m.dedup {
		entries = append(entries, models.DedupEntry{Key: k, LastFiredAt: at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
