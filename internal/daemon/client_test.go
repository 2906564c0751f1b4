package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/pomo/internal/models"
)

func TestClient_BroadcastTimer(t *testing.T) {
	var got models.TimerState
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/timer", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	deadline := time.Date(2026, 3, 2, 12, 25, 0, 0, time.UTC)
	st := models.TimerState{Mode: models.ModeWork, CycleID: "c1", Deadline: &deadline}
	require.NoError(t, NewClient(srv.URL).BroadcastTimer(context.Background(), st))
	assert.Equal(t, models.ModeWork, got.Mode)
	require.NotNil(t, got.Deadline)
	assert.True(t, got.Deadline.Equal(deadline))
}

func TestClient_PushReminders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var specs []models.ReminderSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&specs))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ReminderSyncResult{Accepted: len(specs) - 1, Rejected: []string{"bad"}})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).PushReminders(context.Background(), []models.ReminderSpec{
		{Key: "ok", TimeOfDay: "09:00", Weekdays: []int{1}},
		{Key: "bad", TimeOfDay: "99:00", Weekdays: []int{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, []string{"bad"}, res.Rejected)
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid timer state"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL).BroadcastTimer(context.Background(), models.IdleState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timer state")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := NewClient(addr).Health(context.Background())
	assert.Error(t, err)
}

func TestNewClient_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7463", NewClient("127.0.0.1:7463").baseURL)
	assert.Equal(t, "http://localhost:1", NewClient("http://localhost:1/").baseURL)
}
