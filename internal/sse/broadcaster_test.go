package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notFlusher struct{ http.ResponseWriter }

func TestAddClient_RequiresFlusher(t *testing.T) {
	b := NewBroadcaster()
	_, err := b.AddClient(notFlusher{httptest.NewRecorder()})
	assert.Error(t, err)
}

func TestPublish_NoClients(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(EventTimer, map[string]string{"mode": "work"})
	assert.Equal(t, 0, b.ClientCount())
}

func TestServeHTTP_StreamsEvents(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	b.Publish(EventTimer, map[string]string{"mode": "rest"})

	var got []string
	for len(got) < 2 || !strings.HasPrefix(got[len(got)-1], "data: {\"mode\"") {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) != "" {
			got = append(got, strings.TrimSpace(line))
		}
	}
	assert.Contains(t, got, "event: timer")
	assert.Contains(t, got, `data: {"mode":"rest"}`)

	cancel()
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
