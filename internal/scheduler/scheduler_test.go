package scheduler

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/focus"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/notify"
	"github.com/joescharf/pomo/internal/store"
)

// Monday.
var noon = time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)

type recordingNotifier struct {
	shown []models.Notification
}

func (r *recordingNotifier) Permission() notify.Permission { return notify.PermissionGranted }

func (r *recordingNotifier) Show(_ context.Context, n models.Notification) error {
	r.shown = append(r.shown, n)
	return nil
}

type fakeFocus struct{ ends int }

func (f *fakeFocus) EndIfActive(context.Context) { f.ends++ }

func newTestScheduler(t *testing.T) (*Scheduler, *store.MemoryStore, *recordingNotifier, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(noon)
	s := store.NewMemoryStore()
	rn := &recordingNotifier{}
	sch := New(Config{
		Timer:     s,
		Ledger:    s,
		Reminders: s,
		Notifier:  notify.NewDispatcher(rn, s, clk),
		Clock:     clk,
		Writer:    "daemon",
	})
	return sch, s, rn, clk
}

func workState(start time.Time) models.TimerState {
	deadline := start.Add(25 * time.Minute)
	return models.TimerState{
		Mode:      models.ModeWork,
		CycleID:   "c1",
		Deadline:  &deadline,
		Settings:  models.Settings{WorkSeconds: 1500, RestSeconds: 300},
		UpdatedAt: start,
	}
}

func TestTick_CompletesOverduePhase(t *testing.T) {
	sch, s, rn, _ := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTimer(ctx, workState(noon)))

	sch.Tick(ctx, noon.Add(10*time.Minute))
	assert.Empty(t, rn.shown)
	assert.Equal(t, models.ModeWork, sch.Timer().Mode)

	at := noon.Add(30 * time.Minute)
	sch.Tick(ctx, at)
	require.Len(t, rn.shown, 1)
	assert.Equal(t, "phase-complete-c1-work", rn.shown[0].DedupKey)

	stored, _, err := s.LoadTimer(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeRest, stored.Mode)
	assert.Equal(t, "daemon", stored.Writer)
	assert.True(t, stored.Deadline.Equal(at.Add(5*time.Minute)))

	n, err := s.CountCompletedCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Polling again at the same instant is a no-op.
	sch.Tick(ctx, at)
	assert.Len(t, rn.shown, 1)
}

func TestTick_RestCompletionEndsFocus(t *testing.T) {
	clk := clock.NewFake(noon)
	s := store.NewMemoryStore()
	f := &fakeFocus{}
	sch := New(Config{Timer: s, Clock: clk, Focus: f})
	ctx := context.Background()

	deadline := noon.Add(time.Minute)
	require.NoError(t, s.SaveTimer(ctx, models.TimerState{
		Mode: models.ModeRest, CycleID: "c1", Deadline: &deadline,
		Settings: models.DefaultSettings(), UpdatedAt: noon,
	}))

	sch.Tick(ctx, noon.Add(2*time.Minute))
	assert.True(t, sch.Timer().IsIdle())
	assert.Equal(t, 1, f.ends)
}

func TestTick_PausedUntouched(t *testing.T) {
	sch, s, rn, _ := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTimer(ctx, models.TimerState{
		Mode: models.ModeWork, IsPaused: true, RemainingOnPause: 60,
		Settings: models.DefaultSettings(), UpdatedAt: noon,
	}))

	sch.Tick(ctx, noon.Add(time.Hour))
	assert.Empty(t, rn.shown)
	assert.True(t, sch.Timer().IsPaused)
}

func TestTick_ForegroundAndBackgroundRace(t *testing.T) {
	sch, s, rn, clk := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.SaveTimer(ctx, workState(noon)))

	// A second background instance sharing the same stores.
	other := New(Config{Timer: s, Ledger: s, Notifier: notify.NewDispatcher(rn, s, clk), Clock: clk})

	at := noon.Add(26 * time.Minute)
	sch.Tick(ctx, at)
	other.Tick(ctx, at)

	assert.Len(t, rn.shown, 1)
	n, err := s.CountCompletedCycles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPushTimer(t *testing.T) {
	sch, _, _, _ := newTestScheduler(t)

	assert.True(t, sch.PushTimer(workState(noon)))
	older := workState(noon.Add(-time.Minute))
	older.Mode = models.ModeRest
	assert.False(t, sch.PushTimer(older))
	assert.Equal(t, models.ModeWork, sch.Timer().Mode)

	select {
	case <-sch.wake:
	default:
		t.Fatal("push should wake the poller")
	}
}

func TestPushTimer_CompletesOnNextTick(t *testing.T) {
	sch, _, rn, _ := newTestScheduler(t)
	ctx := context.Background()

	sch.PushTimer(workState(noon))
	sch.Tick(ctx, noon.Add(25*time.Minute))
	require.Len(t, rn.shown, 1)
}

func TestReminders_FireOncePerMinute(t *testing.T) {
	sch, _, rn, _ := newTestScheduler(t)
	ctx := context.Background()

	rejected, err := sch.PushReminders(ctx, []models.ReminderSpec{
		{Key: "stretch", Label: "Stretch", TimeOfDay: "12:05", Weekdays: []int{1}},
		{Key: "sunday", Label: "Plan week", TimeOfDay: "12:05", Weekdays: []int{0}},
		{Key: "never", Label: "No days", TimeOfDay: "12:05"},
	})
	require.NoError(t, err)
	assert.Empty(t, rejected)

	sch.Tick(ctx, noon.Add(4*time.Minute+55*time.Second))
	assert.Empty(t, rn.shown)

	// Several polls inside the matching minute deliver once.
	for _, sec := range []int{0, 5, 10, 55} {
		sch.Tick(ctx, noon.Add(5*time.Minute+time.Duration(sec)*time.Second))
	}
	require.Len(t, rn.shown, 1)
	assert.Equal(t, "stretch-12:05-2026-03-02", rn.shown[0].DedupKey)
	assert.Equal(t, "Time for: Stretch", rn.shown[0].Body)

	sch.Tick(ctx, noon.Add(6*time.Minute))
	assert.Len(t, rn.shown, 1)
}

func TestReminders_PersistAndReload(t *testing.T) {
	sch, s, _, clk := newTestScheduler(t)
	ctx := context.Background()

	rejected, err := sch.PushReminders(ctx, []models.ReminderSpec{
		{Key: "ok", TimeOfDay: "08:00", Weekdays: []int{1, 2}},
		{Key: "bad", TimeOfDay: "25:00", Weekdays: []int{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, rejected)
	assert.Len(t, sch.Reminders(), 1)

	restarted := New(Config{Reminders: s, Clock: clk})
	require.NoError(t, restarted.LoadReminders(ctx))
	assert.Len(t, restarted.Reminders(), 1)
}

func TestOnTimerChange(t *testing.T) {
	sch, s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	var seen []models.Mode
	sch.OnTimerChange(func(st models.TimerState) { seen = append(seen, st.Mode) })

	require.NoError(t, s.SaveTimer(ctx, workState(noon)))
	sch.Tick(ctx, noon.Add(time.Minute))
	sch.Tick(ctx, noon.Add(2*time.Minute))
	sch.Tick(ctx, noon.Add(26*time.Minute))
	assert.Equal(t, []models.Mode{models.ModeWork, models.ModeRest}, seen)
}

func TestCronExpr(t *testing.T) {
	tests := []struct {
		spec    models.ReminderSpec
		want    string
		wantErr bool
	}{
		{models.ReminderSpec{TimeOfDay: "09:30", Weekdays: []int{1, 3, 5}}, "30 9 * * 1,3,5", false},
		{models.ReminderSpec{TimeOfDay: "00:00", Weekdays: []int{0}}, "0 0 * * 0", false},
		{models.ReminderSpec{TimeOfDay: "07:15"}, "", false},
		{models.ReminderSpec{TimeOfDay: "7", Weekdays: []int{1}}, "", true},
		{models.ReminderSpec{TimeOfDay: "12:60", Weekdays: []int{1}}, "", true},
		{models.ReminderSpec{TimeOfDay: "12:00", Weekdays: []int{7}}, "", true},
	}
	for _, tt := range tests {
		got, err := CronExpr(tt.spec)
		if tt.wantErr {
			assert.Error(t, err, tt.spec.TimeOfDay)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	sch := New(Config{PollInterval: time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, sch.Run(ctx))
}

func TestTick_RestCompletionAfterFocusEndedElsewhere(t *testing.T) {
	clk := clock.NewFake(noon)
	s := store.NewMemoryStore()
	ctx := context.Background()

	daemonTracker := focus.NewTracker(s, nil, clk, focus.Options{})
	daemonTracker.Load(ctx)
	_, err := daemonTracker.Start(ctx)
	require.NoError(t, err)
	sch := New(Config{Timer: s, Clock: clk, Focus: daemonTracker})

	cli := focus.NewTracker(s, nil, clk, focus.Options{})
	cli.Load(ctx)
	clk.Advance(20 * time.Minute)
	_, err = cli.End(ctx)
	require.NoError(t, err)

	deadline := clk.Now().Add(time.Minute)
	require.NoError(t, s.SaveTimer(ctx, models.TimerState{
		Mode: models.ModeRest, CycleID: "c1", Deadline: &deadline,
		Settings: models.DefaultSettings(), UpdatedAt: clk.Now(),
	}))
	sch.Tick(ctx, clk.Now().Add(2*time.Minute))
	assert.True(t, sch.Timer().IsIdle())

	st, err := s.LoadFocusStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.SessionsCompleted)
	assert.Equal(t, 1200, st.TotalFocusTime)
}

func TestPushTimer_LogsInconsistentSnapshot(t *testing.T) {
	sch, _, _, _ := newTestScheduler(t)
	buf := &bytes.Buffer{}
	orig := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = orig })

	assert.True(t, sch.PushTimer(models.TimerState{
		Mode: models.ModeRest, CycleID: "c1", Settings: models.DefaultSettings(), UpdatedAt: noon,
	}))
	assert.True(t, sch.Timer().IsIdle())
	assert.Contains(t, buf.String(), "Discarding inconsistent timer snapshot")
	assert.Contains(t, buf.String(), `"source":"push"`)
}
