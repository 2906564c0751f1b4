// Package notify delivers user-facing notifications at most once per dedup
// key, no matter how many execution contexts ask for the same one.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/clock"
	"github.com/joescharf/pomo/internal/models"
	"github.com/joescharf/pomo/internal/store"
)

// Permission mirrors the user's consent to receive notifications.
type Permission string

const (
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionDefault     Permission = "default"
	PermissionUnsupported Permission = "unsupported"
)

const (
	DefaultWindow  = 2 * time.Minute
	DefaultHorizon = 24 * time.Hour
)

// Notifier shows a notification on some surface.
type Notifier interface {
	Permission() Permission
	Show(ctx context.Context, n models.Notification) error
}

// Listener observes notifications that were actually delivered.
type Listener func(models.Notification)

// Dispatcher gates delivery on permission and the dedup store.
type Dispatcher struct {
	notifier Notifier
	dedup    store.DedupStore
	clock    clock.Clock
	window   time.Duration
	horizon  time.Duration

	mu        sync.Mutex
	listeners []Listener
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWindow sets the de-duplication window.
func WithWindow(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.window = d
		}
	}
}

// WithHorizon sets how long dedup entries are kept.
func WithHorizon(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.horizon = d
		}
	}
}

// NewDispatcher returns a Dispatcher. A nil dedup store disables
// de-duplication; a nil clock uses the real one.
func NewDispatcher(n Notifier, dedup store.DedupStore, clk clock.Clock, opts ...Option) *Dispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	d := &Dispatcher{
		notifier: n,
		dedup:    dedup,
		clock:    clk,
		window:   DefaultWindow,
		horizon:  DefaultHorizon,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers l to be called after every delivered notification.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Permission reports the backend's permission state.
func (d *Dispatcher) Permission() Permission {
	if d == nil || d.notifier == nil {
		return PermissionUnsupported
	}
	return d.notifier.Permission()
}

// Dispatch shows n unless permission is missing or the dedup key fired
// within the window. It reports whether n was delivered and never fails.
//
// The key is claimed before the notifier is called, so a backend failure
// loses that notification rather than risking a duplicate.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) bool {
	if perm := d.Permission(); perm != PermissionGranted {
		log.Debug().Str("permission", string(perm)).Str("key", n.DedupKey).Msg("Notification suppressed")
		return false
	}

	now := d.clock.Now()
	if d.dedup != nil && n.DedupKey != "" {
		claimed, err := d.dedup.ClaimNotification(ctx, n.DedupKey, now, d.window)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("key", n.DedupKey).Msg("Dedup store unavailable, delivering anyway")
		case !claimed:
			log.Debug().Str("key", n.DedupKey).Msg("Duplicate notification dropped")
			return false
		}
		d.purge(ctx, now)
	}

	if err := d.notifier.Show(ctx, n); err != nil {
		log.Warn().Err(err).Str("key", n.DedupKey).Msg("Notification delivery failed")
		return false
	}
	log.Info().Str("kind", string(n.Kind)).Str("key", n.DedupKey).Msg("Notification delivered")

	d.mu.Lock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.Unlock()
	for _, l := range listeners {
		l(n)
	}
	return true
}

func (d *Dispatcher) purge(ctx context.Context, now time.Time) {
	n, err := d.dedup.PurgeNotifications(ctx, now.Add(-d.horizon))
	if err != nil {
		log.Debug().Err(err).Msg("Dedup purge failed")
		return
	}
	if n > 0 {
		log.Debug().Int64("purged", n).Msg("Expired dedup entries removed")
	}
}

// NoneNotifier never delivers anything.
type NoneNotifier struct{}

func (NoneNotifier) Permission() Permission { return PermissionDenied }

func (NoneNotifier) Show(context.Context, models.Notification) error { return nil }
