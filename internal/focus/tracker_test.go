package focus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/notify"
	"github.com/joescharf/pomo/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)

type recordingNotifier struct {
	shown []models.Notification
}

func (r *recordingNotifier) Permission() notify.Permission { return notify.PermissionGranted }

func (r *recordingNotifier) Show(_ context.Context, n models.Notification) error {
	r.shown = append(r.shown, n)
	return nil
}

func newTestTracker(t *testing.T, opts Options) (*Tracker, *clock.Fake, *store.MemoryStore, *recordingNotifier) {
	t.Helper()
	clk := clock.NewFake(t0)
	s := store.NewMemoryStore()
	rn := &recordingNotifier{}
	d := notify.NewDispatcher(rn, s, clk)
	tr := NewTracker(s, d, clk, opts)
	tr.Load(context.Background())
	return tr, clk, s, rn
}

func TestTracker_InterruptionAccounting(t *testing.T) {
	tr, clk, _, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)

	clk.Set(t0.Add(20 * time.Second))
	assert.True(t, tr.SetVisible(ctx, false))
	clk.Set(t0.Add(35 * time.Second))
	assert.True(t, tr.SetVisible(ctx, true))
	clk.Set(t0.Add(100 * time.Second))

	fs, err := tr.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 85, fs.TotalTime)
	require.Len(t, fs.Interruptions, 1)
	assert.Equal(t, 15, fs.Interruptions[0].Duration)
	assert.False(t, fs.IsActive)
	require.NotNil(t, fs.EndTime)
}

func TestTracker_LiveTotalCountsOpenInterruption(t *testing.T) {
	tr, clk, _, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)
	clk.Advance(30 * time.Second)
	tr.SetVisible(ctx, false)
	clk.Advance(45 * time.Second)

	d := tr.Display()
	assert.True(t, d.IsFocusModeActive)
	assert.False(t, d.IsVisible)
	assert.Equal(t, 30, d.CurrentFocusSeconds)
	assert.Equal(t, 45, d.TimeAwaySeconds)
	assert.Len(t, d.Interruptions, 1)
}

func TestTracker_EndClosesOpenInterruption(t *testing.T) {
	tr, clk, _, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	tr.SetVisible(ctx, false)
	clk.Advance(50 * time.Second)

	fs, err := tr.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, fs.TotalTime)
	require.NotNil(t, fs.Interruptions[0].EndTime)
	assert.Equal(t, 50, fs.Interruptions[0].Duration)
	assert.True(t, tr.Visible())
}

func TestTracker_SingleActiveSlot(t *testing.T) {
	tr, _, _, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)
	_, err = tr.Start(ctx)
	assert.ErrorIs(t, err, ErrSessionActive)

	_, err = tr.End(ctx)
	require.NoError(t, err)
	_, err = tr.End(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestTracker_VisibilityWithoutSession(t *testing.T) {
	tr, _, _, rn := newTestTracker(t, Options{WelcomeBack: true})
	ctx := context.Background()

	assert.True(t, tr.SetVisible(ctx, false))
	assert.False(t, tr.SetVisible(ctx, false), "repeated transition is ignored")
	assert.True(t, tr.SetVisible(ctx, true))
	assert.Empty(t, rn.shown)
}

func TestTracker_Notifications(t *testing.T) {
	tr, clk, _, rn := newTestTracker(t, Options{WelcomeBack: true})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)
	tr.SetVisible(ctx, false)
	clk.Advance(75 * time.Second)
	tr.SetVisible(ctx, true)

	require.Len(t, rn.shown, 2)
	assert.Equal(t, models.NotificationFocusInterrupted, rn.shown[0].Kind)
	assert.Equal(t, models.NotificationFocusWelcomeBack, rn.shown[1].Kind)
	assert.Contains(t, rn.shown[1].Body, "1m 15s")
}

func TestTracker_WelcomeBackDisabled(t *testing.T) {
	tr, clk, _, rn := newTestTracker(t, Options{WelcomeBack: false})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)
	tr.SetVisible(ctx, false)
	clk.Advance(time.Minute)
	tr.SetVisible(ctx, true)

	require.Len(t, rn.shown, 1)
	assert.Equal(t, models.NotificationFocusInterrupted, rn.shown[0].Kind)
}

func TestTracker_ResumesAcrossContexts(t *testing.T) {
	tr, clk, s, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	_, err := tr.Start(ctx)
	require.NoError(t, err)
	clk.Advance(5 * time.Second)
	tr.SetVisible(ctx, false)

	// A second context loading from the same store sees the open interruption.
	other := NewTracker(s, nil, clk, Options{})
	other.Load(ctx)
	assert.False(t, other.Visible())
	require.NotNil(t, other.Active())

	clk.Advance(10 * time.Second)
	assert.True(t, other.SetVisible(ctx, true))
	fs, err := other.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, fs.TotalTime)
}

func TestTracker_StatsAndHistory(t *testing.T) {
	tr, clk, _, _ := newTestTracker(t, Options{HistoryLimit: 2})
	ctx := context.Background()

	for _, secs := range []int{60, 120, 30} {
		_, err := tr.Start(ctx)
		require.NoError(t, err)
		clk.Advance(time.Duration(secs) * time.Second)
		_, err = tr.End(ctx)
		require.NoError(t, err)
	}

	st, err := tr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 210, st.TotalFocusTime)
	assert.Equal(t, 3, st.SessionsCompleted)
	assert.Equal(t, 120, st.LongestStreak)
	assert.Equal(t, 30, st.LastSessionSeconds)
	assert.InDelta(t, 70.0, st.AverageSessionLength, 0.001)
	assert.Equal(t, 1, st.DayStreak)

	hist, err := tr.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 30, hist[0].TotalTime)
}

func TestTracker_AutoLink(t *testing.T) {
	tr, clk, _, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	tr.StartIfIdle(ctx)
	first := tr.Active()
	require.NotNil(t, first)
	tr.StartIfIdle(ctx)
	assert.Equal(t, first.ID, tr.Active().ID)

	clk.Advance(time.Minute)
	tr.EndIfActive(ctx)
	assert.Nil(t, tr.Active())
	tr.EndIfActive(ctx)
}

func TestFoldStats_DayStreak(t *testing.T) {
	day := func(d int) *models.FocusSession {
		end := t0.AddDate(0, 0, d)
		return &models.FocusSession{StartTime: end.Add(-time.Minute), EndTime: &end, TotalTime: 60}
	}

	var st models.FocusStats
	st = FoldStats(st, day(0))
	assert.Equal(t, 1, st.DayStreak)
	st = FoldStats(st, day(0))
	assert.Equal(t, 1, st.DayStreak, "same day does not extend the streak")
	st = FoldStats(st, day(1))
	assert.Equal(t, 2, st.DayStreak)
	st = FoldStats(st, day(3))
	assert.Equal(t, 1, st.DayStreak, "gap resets the streak")
	assert.Equal(t, 4, st.SessionsCompleted)
}

func TestTracker_StartSeesSessionFromOtherContext(t *testing.T) {
	stale, clk, s, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	other := NewTracker(s, nil, clk, Options{})
	other.Load(ctx)
	first, err := other.Start(ctx)
	require.NoError(t, err)

	// stale loaded before the session existed.
	_, err = stale.Start(ctx)
	assert.ErrorIs(t, err, ErrSessionActive)
	require.NotNil(t, stale.Active())
	assert.Equal(t, first.ID, stale.Active().ID)

	clk.Advance(time.Minute)
	_, err = other.End(ctx)
	require.NoError(t, err)

	fresh := NewTracker(s, nil, clk, Options{})
	fresh.Load(ctx)
	assert.Nil(t, fresh.Active(), "no second session left active")
}

func TestTracker_EndAfterOtherContextEndedIsNoop(t *testing.T) {
	stale, clk, s, _ := newTestTracker(t, Options{})
	ctx := context.Background()

	_, err := stale.Start(ctx)
	require.NoError(t, err)

	other := NewTracker(s, nil, clk, Options{})
	other.Load(ctx)
	clk.Advance(10 * time.Minute)
	_, err = other.End(ctx)
	require.NoError(t, err)

	clk.Advance(15 * time.Minute)
	_, err = stale.End(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	st, err := s.LoadFocusStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.SessionsCompleted)
	assert.Equal(t, 600, st.TotalFocusTime)

	hist, err := stale.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 600, hist[0].TotalTime)
}
