package cmd

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/store"
)

func TestTimerStart_PersistsAcrossInvocations(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))
	assert.Contains(t, testOutput(), "Work phase started: 25:00")

	_, err := os.Stat(snapshotPath())
	require.NoError(t, err, "snapshot file should be written")

	// A later invocation sees the running phase.
	closeStore()
	fakeClock().Advance(10 * time.Minute)
	require.NoError(t, timerStatusRun(ctx))
	assert.Contains(t, testOutput(), "15:00")
}

func TestTimerStart_WhenRunningIsNotApplied(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))
	require.NoError(t, timerCommandRun(ctx, "start"))
	assert.Contains(t, testOutput(), "Cannot start: timer is running")
}

func TestTimerPauseResume(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))
	fakeClock().Advance(5 * time.Minute)
	require.NoError(t, timerCommandRun(ctx, "pause"))
	assert.Contains(t, testOutput(), "Paused with 20:00 left")

	// Paused time does not count.
	fakeClock().Advance(time.Hour)
	require.NoError(t, timerCommandRun(ctx, "resume"))
	assert.Contains(t, testOutput(), "Resumed: 20:00 left")
}

func TestTimerReset(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))
	require.NoError(t, timerCommandRun(ctx, "reset"))
	assert.Contains(t, testOutput(), "Timer reset")

	s, err := getStore()
	require.NoError(t, err)
	st, found, err := s.LoadTimer(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.ModeIdle, st.Mode)
}

func TestTimerStatus_CompletesOverduePhase(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))
	closeStore()

	// The terminal was closed through the whole work phase.
	fakeClock().Advance(27 * time.Minute)
	require.NoError(t, timerStatusRun(ctx))

	out := testOutput()
	assert.Contains(t, out, "Work Session Complete!")
	assert.Contains(t, out, "rest")
	assert.Contains(t, out, "3:00")
	assert.Contains(t, out, "Completed: 1")
}

func TestTimerStatus_PrefersNewestCopy(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))

	// A stale database row must not override the newer snapshot file.
	s, err := getStore()
	require.NoError(t, err)
	stale := models.IdleState()
	stale.UpdatedAt = testNow.Add(-time.Hour)
	require.NoError(t, s.SaveTimer(ctx, stale))

	snap, found, err := store.NewSnapshotStore(snapshotPath()).LoadTimer(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.ModeWork, snap.Mode)

	closeStore()
	require.NoError(t, timerStatusRun(ctx))
	assert.Contains(t, testOutput(), "work")
}

func TestTimerCommand_Unknown(t *testing.T) {
	testEnv(t)
	err := timerCommandRun(context.Background(), "rewind")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timer command")
}

func TestTimerLine(t *testing.T) {
	idle := timerLine(models.TimerDisplay{Mode: models.ModeIdle, SessionCount: 2})
	assert.Contains(t, idle, "idle")
	assert.Contains(t, idle, "2 done")

	paused := timerLine(models.TimerDisplay{Mode: models.ModeWork, RemainingSeconds: 754, IsPaused: true})
	assert.Contains(t, paused, "12:34")
	assert.Contains(t, paused, "paused")
}
