package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRun_Idle(t *testing.T) {
	testEnv(t)

	require.NoError(t, statusRun(context.Background()))
	out := testOutput()
	assert.Contains(t, out, "Timer")
	assert.Contains(t, out, "idle")
	assert.Contains(t, out, "No active focus session")
	assert.Contains(t, out, "not running")
}

func TestStatusRun_Running(t *testing.T) {
	testEnv(t)
	ctx := context.Background()

	require.NoError(t, timerCommandRun(ctx, "start"))
	require.NoError(t, statusRun(ctx))
	out := testOutput()
	assert.Contains(t, out, "25:00")
	assert.Contains(t, out, "focused")
}

func TestVersionCmd(t *testing.T) {
	testEnv(t)
	buildVersion = "1.2.3"
	t.Cleanup(func() { buildVersion = "dev" })

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, testOutput(), "pomo 1.2.3")
}
