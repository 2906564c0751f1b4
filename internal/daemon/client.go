package daemon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/joescharf/pomo/internal/models"
)

// Health is the daemon's liveness report.
type Health struct {
	Status    string    `json:"status"`
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
	LastTick  time.Time `json:"lastTick"`
	Reminders int       `json:"reminders"`
}

// ReminderSyncResult reports which pushed reminders were rejected.
type ReminderSyncResult struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

// Client pushes state to a running daemon. Every call is best effort: the
// daemon also polls the shared store, so a failed push only adds latency.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the daemon listening on addr (host:port).
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

// BroadcastTimer sends a fresh timer snapshot.
func (c *Client) BroadcastTimer(ctx context.Context, st models.TimerState) error {
	return c.do(ctx, http.MethodPut, "/api/v1/timer", st, nil)
}

// PushReminders replaces the daemon's reminder list.
func (c *Client) PushReminders(ctx context.Context, specs []models.ReminderSpec) (*ReminderSyncResult, error) {
	if specs == nil {
		specs = []models.ReminderSpec{}
	}
	var res ReminderSyncResult
	if err := c.do(ctx, http.MethodPut, "/api/v1/reminders", specs, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health queries the daemon's health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
