package presence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// VisibilitySink receives visibility transitions.
type VisibilitySink interface {
	SetVisible(ctx context.Context, visible bool) bool
}

// Monitor treats the user as away once idle time reaches Threshold.
type Monitor struct {
	provider  IdleProvider
	sink      VisibilitySink
	threshold time.Duration
	interval  time.Duration
}

// NewMonitor returns a Monitor polling provider every interval.
func NewMonitor(provider IdleProvider, sink VisibilitySink, threshold, interval time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = time.Minute
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{provider: provider, sink: sink, threshold: threshold, interval: interval}
}

// Check samples idle time once and forwards the derived visibility.
func (m *Monitor) Check(ctx context.Context) error {
	idle, err := m.provider.IdleDuration()
	if err != nil {
		return err
	}
	visible := idle < m.threshold
	if m.sink.SetVisible(ctx, visible) {
		log.Debug().Bool("visible", visible).Dur("idle", idle).Msg("Visibility changed")
	}
	return nil
}

// Run polls until ctx is done. It returns ErrIdleUnsupported immediately if
// the platform cannot report idle time; other sampling errors are logged.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Check(ctx); errors.Is(err, ErrIdleUnsupported) {
		return err
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Check(ctx); err != nil {
				log.Debug().Err(err).Msg("Idle check failed")
			}
		}
	}
}
