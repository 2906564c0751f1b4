package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pomo/internal/models"
)

var t0 = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func settings25x5() models.Settings {
	return models.Settings{WorkSeconds: 25 * 60, RestSeconds: 5 * 60}
}

func TestStart_FromIdle(t *testing.T) {
	s, ok := Start(models.IdleState(), settings25x5(), "cycle-1", t0)
	require.True(t, ok)

	assert.Equal(t, models.ModeWork, s.Mode)
	assert.Equal(t, "cycle-1", s.CycleID)
	require.NotNil(t, s.Deadline)
	assert.Equal(t, t0.Add(25*time.Minute), *s.Deadline)
	assert.False(t, s.IsPaused)
	assert.Equal(t, 1500, RemainingSeconds(s, t0))
}

func TestStart_RejectedWhenNotIdle(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "cycle-1", t0)

	again, ok := Start(s, settings25x5(), "cycle-2", t0.Add(time.Minute))
	assert.False(t, ok)
	assert.Equal(t, s, again)
}

func TestStart_RejectsInvalidSettings(t *testing.T) {
	_, ok := Start(models.IdleState(), models.Settings{WorkSeconds: 0, RestSeconds: 60}, "c", t0)
	assert.False(t, ok)
}

func TestPauseResume_FromIdleRejected(t *testing.T) {
	idle := models.IdleState()

	s, ok := Pause(idle, t0)
	assert.False(t, ok)
	assert.Equal(t, idle, s)

	s, ok = Resume(idle, t0)
	assert.False(t, ok)
	assert.Equal(t, idle, s)
}

func TestPause_StoresRemainingAndClearsDeadline(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)

	paused, ok := Pause(s, t0.Add(10*time.Minute+500*time.Millisecond))
	require.True(t, ok)
	assert.True(t, paused.IsPaused)
	assert.Nil(t, paused.Deadline)
	assert.Equal(t, 900, paused.RemainingOnPause, "14m59.5s rounds up")
	assert.Equal(t, 900, RemainingSeconds(paused, t0.Add(time.Hour)), "paused time does not move")

	// The original is untouched.
	require.NotNil(t, s.Deadline)
	assert.False(t, s.IsPaused)
}

func TestPause_AfterDeadlineClampsToZero(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	paused, ok := Pause(s, t0.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 0, paused.RemainingOnPause)
}

func TestPause_TwiceRejected(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	paused, _ := Pause(s, t0.Add(time.Minute))
	again, ok := Pause(paused, t0.Add(2*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, paused, again)
}

func TestResume_SetsFreshDeadline(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	paused, _ := Pause(s, t0.Add(10*time.Minute))

	resumeAt := t0.Add(time.Hour)
	resumed, ok := Resume(paused, resumeAt)
	require.True(t, ok)
	assert.False(t, resumed.IsPaused)
	assert.Equal(t, 0, resumed.RemainingOnPause)
	require.NotNil(t, resumed.Deadline)
	assert.Equal(t, resumeAt.Add(15*time.Minute), *resumed.Deadline)
}

func TestResume_WhileRunningRejected(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	_, ok := Resume(s, t0)
	assert.False(t, ok)
}

func TestReset_FromAnyState(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	paused, _ := Pause(s, t0.Add(time.Minute))

	for _, in := range []models.TimerState{models.IdleState(), s, paused} {
		out, ok := Reset(in, t0.Add(2*time.Minute))
		assert.True(t, ok)
		assert.True(t, out.IsIdle())
		assert.Nil(t, out.Deadline)
		assert.Empty(t, out.CycleID)
	}
}

func TestComplete_WorkToRest(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	at := t0.Add(25 * time.Minute)

	next, ev, ok := Complete(s, at)
	require.True(t, ok)
	require.NotNil(t, ev)
	assert.Equal(t, models.ModeRest, next.Mode)
	assert.Equal(t, at.Add(5*time.Minute), *next.Deadline)
	assert.Equal(t, models.ModeWork, ev.Phase)
	assert.Equal(t, models.ModeRest, ev.Next)
	assert.Equal(t, "c", ev.CycleID)
}

func TestComplete_RestToIdle(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	rest, _, _ := Complete(s, t0.Add(25*time.Minute))

	idle, ev, ok := Complete(rest, t0.Add(31*time.Minute))
	require.True(t, ok)
	assert.True(t, idle.IsIdle())
	assert.Equal(t, models.ModeRest, ev.Phase)
	assert.Equal(t, models.ModeIdle, ev.Next)
}

func TestComplete_NoOpWhenAlreadyMovedOn(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	at := t0.Add(25 * time.Minute)
	rest, _, _ := Complete(s, at)

	// A second context applies the same completion to the state it already sees.
	again, ev, ok := Complete(rest, at)
	assert.False(t, ok)
	assert.Nil(t, ev)
	assert.Equal(t, rest, again)
}

func TestComplete_PausedIsNoOp(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	paused, _ := Pause(s, t0.Add(time.Minute))
	_, _, ok := Complete(paused, t0.Add(time.Hour))
	assert.False(t, ok)
}

func TestReconcile_DriftFree(t *testing.T) {
	work := models.Settings{WorkSeconds: 1500, RestSeconds: 300}
	s, _ := Start(models.IdleState(), work, "c", t0)

	now := t0.Add(1500001 * time.Millisecond)
	out, events := Reconcile(s, now)

	assert.Equal(t, models.ModeRest, out.Mode)
	require.NotNil(t, out.Deadline)
	assert.Equal(t, now.Add(300*time.Second), *out.Deadline)
	assert.Equal(t, 300, RemainingSeconds(out, now))
	require.Len(t, events, 1)
	assert.Equal(t, models.ModeWork, events[0].Phase)
}

func TestReconcile_StillRunning(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	out, events := Reconcile(s, t0.Add(10*time.Minute+100*time.Millisecond))

	assert.Equal(t, s, out)
	assert.Empty(t, events)
	assert.Equal(t, 900, RemainingSeconds(out, t0.Add(10*time.Minute+100*time.Millisecond)))
}

func TestReconcile_Idempotent(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	now := t0.Add(26 * time.Minute)

	once, events := Reconcile(s, now)
	require.Len(t, events, 1)

	twice, more := Reconcile(once, now)
	assert.Equal(t, once, twice)
	assert.Empty(t, more)
}

func TestReconcile_Scenario(t *testing.T) {
	start := time.Date(2025, 6, 2, 12, 0, 0, 0, time.Local)
	s, ok := Start(models.IdleState(), settings25x5(), "cycle-x", start)
	require.True(t, ok)
	assert.Equal(t, start.Add(25*time.Minute), *s.Deadline)

	out, events := Reconcile(s, start.Add(30*time.Minute))
	assert.Equal(t, models.ModeRest, out.Mode)
	assert.Equal(t, start.Add(35*time.Minute), *out.Deadline)
	require.Len(t, events, 1)
	assert.Equal(t, EventPhaseComplete, events[0].Kind)
	assert.Equal(t, models.ModeWork, events[0].Phase)
}

func TestReconcile_RestExpiredGoesIdle(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	rest, _, _ := Complete(s, t0.Add(25*time.Minute))

	out, events := Reconcile(rest, t0.Add(3*time.Hour))
	assert.True(t, out.IsIdle())
	require.Len(t, events, 1)
	assert.Equal(t, models.ModeRest, events[0].Phase)
}

func TestReconcile_PausedUntouched(t *testing.T) {
	s, _ := Start(models.IdleState(), settings25x5(), "c", t0)
	paused, _ := Pause(s, t0.Add(time.Minute))

	out, events := Reconcile(paused, t0.Add(24*time.Hour))
	assert.Equal(t, paused, out)
	assert.Empty(t, events)
}

func TestNormalize(t *testing.T) {
	deadline := t0
	tests := []struct {
		name string
		in   models.TimerState
		ok   bool
	}{
		{"idle", models.IdleState(), true},
		{"unknown mode", models.TimerState{Mode: "nap"}, false},
		{"idle with deadline", models.TimerState{Mode: models.ModeIdle, Deadline: &deadline}, false},
		{"work without deadline", models.TimerState{Mode: models.ModeWork, Settings: settings25x5()}, false},
		{"work with bad settings", models.TimerState{Mode: models.ModeWork, Deadline: &deadline}, false},
		{"paused with deadline", models.TimerState{Mode: models.ModeRest, IsPaused: true, Deadline: &deadline, Settings: settings25x5()}, false},
		{"paused", models.TimerState{Mode: models.ModeRest, IsPaused: true, RemainingOnPause: 30, Settings: settings25x5()}, true},
		{"running", models.TimerState{Mode: models.ModeWork, Deadline: &deadline, Settings: settings25x5()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				assert.True(t, out.IsIdle())
			}
		})
	}
}
