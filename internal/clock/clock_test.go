package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueCallbacks(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var fired []string
	f.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	f.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	f.AfterFunc(time.Minute, func() { fired = append(fired, "late") })

	f.Advance(5 * time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(5*time.Second), f.Now())
	assert.Equal(t, 1, f.Pending())
}

func TestFake_StopPreventsCallback(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	called := false
	tm := f.AfterFunc(time.Second, func() { called = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop(), "second stop reports nothing to stop")

	f.Advance(time.Hour)
	assert.False(t, called)
	assert.Equal(t, 0, f.Pending())
}
