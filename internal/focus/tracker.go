// Package focus tracks focus sessions and the interruptions inside them.
package focus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/notify"
	"github.com/joescharf/pomo/internal/store"
)

var (
	ErrSessionActive   = errors.New("a focus session is already active")
	ErrNoActiveSession = errors.New("no active focus session")
)

// DefaultHistoryLimit is how many completed sessions are retained.
const DefaultHistoryLimit = 50

const dayLayout = "2006-01-02"

// Options tune a Tracker.
type Options struct {
	HistoryLimit int
	WelcomeBack  bool // notify on return from an interruption
}

// Tracker owns the single active focus session slot and the visibility state
// of the context it runs in.
type Tracker struct {
	store    store.FocusStore
	notifier *notify.Dispatcher
	clock    clock.Clock
	opts     Options

	mu      sync.Mutex
	active  *models.FocusSession
	visible bool
}

// NewTracker returns a Tracker. Call Load before use to pick up a session
// started by another context.
func NewTracker(s store.FocusStore, d *notify.Dispatcher, clk clock.Clock, opts Options) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Tracker{store: s, notifier: d, clock: clk, opts: opts, visible: true}
}

// Load reads the active session from the store. An unreadable store leaves
// the tracker with no active session.
func (t *Tracker) Load(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active, t.visible = nil, true
	if t.store == nil {
		return
	}
	fs, err := t.store.LoadActiveFocusSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot load focus session")
		return
	}
	if fs == nil {
		return
	}
	t.active = fs
	t.visible = fs.OpenInterruption() < 0
}

// Start opens a new session. Only one session may be active.
func (t *Tracker) Start(ctx context.Context) (*models.FocusSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refresh(ctx)
	if t.active != nil {
		return nil, ErrSessionActive
	}
	t.active = &models.FocusSession{
		ID:            store.NewID(),
		StartTime:     t.clock.Now(),
		Interruptions: []models.Interruption{},
		IsActive:      true,
	}
	t.visible = true
	t.persist(ctx)
	log.Info().Str("session", t.active.ID).Msg("Focus session started")
	return copySession(t.active), nil
}

// End finalizes the active session, folds it into stats and trims history.
func (t *Tracker) End(ctx context.Context) (*models.FocusSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.refresh(ctx)
	if t.active == nil {
		return nil, ErrNoActiveSession
	}
	now := t.clock.Now()
	fs := t.active
	if i := fs.OpenInterruption(); i >= 0 {
		closeInterruption(&fs.Interruptions[i], now)
	}
	fs.EndTime = &now
	fs.TotalTime = netFocusSeconds(fs, now)
	fs.IsActive = false
	t.persist(ctx)

	t.active, t.visible = nil, true

	if t.store != nil {
		stats, err := t.store.LoadFocusStats(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Cannot load focus stats")
		} else if err := t.store.SaveFocusStats(ctx, FoldStats(stats, fs)); err != nil {
			log.Warn().Err(err).Msg("Cannot save focus stats")
		}
		if _, err := t.store.TrimFocusHistory(ctx, t.opts.HistoryLimit); err != nil {
			log.Warn().Err(err).Msg("Cannot trim focus history")
		}
	}

	log.Info().Str("session", fs.ID).Int("total_time", fs.TotalTime).
		Int("interruptions", len(fs.Interruptions)).Msg("Focus session ended")
	return copySession(fs), nil
}

// SetVisible records a visibility transition. Hiding during a session opens
// an interruption; returning closes it. It reports whether anything changed.
func (t *Tracker) SetVisible(ctx context.Context, visible bool) bool {
	t.mu.Lock()
	if visible == t.visible {
		t.mu.Unlock()
		return false
	}
	t.visible = visible

	fs := t.active
	if fs == nil {
		t.mu.Unlock()
		return true
	}

	now := t.clock.Now()
	var n *models.Notification
	if !visible {
		in := models.Interruption{ID: store.NewID(), StartTime: now}
		fs.Interruptions = append(fs.Interruptions, in)
		msg := notify.FocusInterrupted(fs.ID, in.ID)
		n = &msg
	} else if i := fs.OpenInterruption(); i >= 0 {
		in := &fs.Interruptions[i]
		closeInterruption(in, now)
		if t.opts.WelcomeBack {
			msg := notify.WelcomeBack(fs.ID, in.ID, in.Duration)
			n = &msg
		}
	}
	fs.TotalTime = netFocusSeconds(fs, now)
	t.persist(ctx)
	t.mu.Unlock()

	if n != nil {
		t.notifier.Dispatch(ctx, *n)
	}
	return true
}

// Visible reports the tracker's current visibility.
func (t *Tracker) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Active returns a copy of the active session, or nil.
func (t *Tracker) Active() *models.FocusSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return nil
	}
	return copySession(t.active)
}

// Display computes the live focus view.
func (t *Tracker) Display() models.FocusDisplay {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := models.FocusDisplay{IsVisible: t.visible, Interruptions: []models.Interruption{}}
	if t.active == nil {
		return d
	}
	now := t.clock.Now()
	d.IsFocusModeActive = true
	d.SessionID = t.active.ID
	d.CurrentFocusSeconds = netFocusSeconds(t.active, now)
	d.TimeAwaySeconds = timeAwaySeconds(t.active, now)
	d.Interruptions = append(d.Interruptions, t.active.Interruptions...)
	return d
}

// Stats returns the aggregate over completed sessions.
func (t *Tracker) Stats(ctx context.Context) (models.FocusStats, error) {
	if t.store == nil {
		return models.FocusStats{}, nil
	}
	return t.store.LoadFocusStats(ctx)
}

// History returns up to limit completed sessions, newest first.
func (t *Tracker) History(ctx context.Context, limit int) ([]*models.FocusSession, error) {
	if t.store == nil {
		return nil, nil
	}
	return t.store.ListFocusSessions(ctx, limit)
}

// StartIfIdle starts a session unless one is already running.
func (t *Tracker) StartIfIdle(ctx context.Context) {
	if _, err := t.Start(ctx); err != nil && !errors.Is(err, ErrSessionActive) {
		log.Warn().Err(err).Msg("Auto focus start failed")
	}
}

// EndIfActive ends the active session, if any.
func (t *Tracker) EndIfActive(ctx context.Context) {
	if _, err := t.End(ctx); err != nil && !errors.Is(err, ErrNoActiveSession) {
		log.Warn().Err(err).Msg("Auto focus end failed")
	}
}

// refresh replaces the in-memory session with the stored one, so a session
// started or ended by another process is seen before the slot changes. On a
// store error the in-memory session is kept. Caller holds mu.
func (t *Tracker) refresh(ctx context.Context) {
	if t.store == nil {
		return
	}
	fs, err := t.store.LoadActiveFocusSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cannot reload focus session")
		return
	}
	if fs == nil || t.active == nil || fs.ID != t.active.ID {
		t.active = fs
		t.visible = fs == nil || fs.OpenInterruption() < 0
		return
	}
	t.active = fs
}

// persist writes the active session. Caller holds mu.
func (t *Tracker) persist(ctx context.Context) {
	if t.store == nil || t.active == nil {
		return
	}
	if err := t.store.SaveFocusSession(ctx, t.active); err != nil {
		log.Warn().Err(err).Str("session", t.active.ID).Msg("Cannot save focus session")
	}
}

func closeInterruption(in *models.Interruption, now time.Time) {
	end := now
	if end.Before(in.StartTime) {
		end = in.StartTime
	}
	in.EndTime = &end
	in.Duration = int(end.Sub(in.StartTime) / time.Second)
}

// awayDuration sums interruption time inside [fs.StartTime, now], counting
// an open interruption up to now.
func awayDuration(fs *models.FocusSession, now time.Time) time.Duration {
	var away time.Duration
	for _, in := range fs.Interruptions {
		start := in.StartTime
		if start.Before(fs.StartTime) {
			start = fs.StartTime
		}
		end := now
		if in.EndTime != nil && in.EndTime.Before(now) {
			end = *in.EndTime
		}
		if end.After(start) {
			away += end.Sub(start)
		}
	}
	return away
}

// netFocusSeconds is elapsed wall-clock time minus interruption time.
func netFocusSeconds(fs *models.FocusSession, now time.Time) int {
	elapsed := now.Sub(fs.StartTime)
	net := elapsed - awayDuration(fs, now)
	if net < 0 {
		return 0
	}
	return int(net / time.Second)
}

func timeAwaySeconds(fs *models.FocusSession, now time.Time) int {
	return int(awayDuration(fs, now) / time.Second)
}

// FoldStats adds a completed session to the aggregate.
func FoldStats(st models.FocusStats, fs *models.FocusSession) models.FocusStats {
	st.TotalFocusTime += fs.TotalTime
	st.TotalInterruptions += len(fs.Interruptions)
	st.SessionsCompleted++
	st.LastSessionSeconds = fs.TotalTime
	if fs.TotalTime > st.LongestStreak {
		st.LongestStreak = fs.TotalTime
	}
	st.AverageSessionLength = float64(st.TotalFocusTime) / float64(st.SessionsCompleted)

	end := fs.StartTime
	if fs.EndTime != nil {
		end = *fs.EndTime
	}
	day := end.Format(dayLayout)
	switch st.LastSessionDay {
	case day:
		if st.DayStreak == 0 {
			st.DayStreak = 1
		}
	case end.AddDate(0, 0, -1).Format(dayLayout):
		st.DayStreak++
	default:
		st.DayStreak = 1
	}
	st.LastSessionDay = day
	return st
}

func copySession(fs *models.FocusSession) *models.FocusSession {
	c := *fs
	c.Interruptions = append([]models.Interruption(nil), fs.Interruptions...)
	return &c
}
