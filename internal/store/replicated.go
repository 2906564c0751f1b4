package store

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/joescharf/pomo/internal/models"
)

// Broadcaster announces a freshly written timer snapshot to the background
// scheduler.
type Broadcaster interface {
	BroadcastTimer(ctx context.Context, state models.TimerState) error
}

// Replicated stores the timer record in a fast store and a structured store
// and announces each write. Reads return whichever copy was written last.
// Any of the three parts may be nil.
type Replicated struct {
	fast       TimerStore
	structured TimerStore
	broadcast  Broadcaster
}

var _ TimerStore = (*Replicated)(nil)

// NewReplicated combines the given stores.
func NewReplicated(fast, structured TimerStore, broadcast Broadcaster) *Replicated {
	return &Replicated{fast: fast, structured: structured, broadcast: broadcast}
}

// LoadTimer never fails: a store that errors is treated as holding nothing.
func (r *Replicated) LoadTimer(ctx context.Context) (models.TimerState, bool, error) {
	best, found := models.IdleState(), false
	for _, s := range []TimerStore{r.fast, r.structured} {
		if s == nil {
			continue
		}
		st, ok, err := s.LoadTimer(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Timer store read failed")
			continue
		}
		if !ok {
			continue
		}
		if !found || st.NewerThan(best) {
			best, found = st, true
		}
	}
	return best, found, nil
}

// SaveTimer writes the fast store first so the next foreground load sees the
// change immediately. Mirror and broadcast failures are logged, not returned.
func (r *Replicated) SaveTimer(ctx context.Context, st models.TimerState) error {
	if r.fast != nil {
		if err := r.fast.SaveTimer(ctx, st); err != nil {
			log.Warn().Err(err).Msg("Fast timer store write failed")
		}
	}
	if r.structured != nil {
		if err := r.structured.SaveTimer(ctx, st); err != nil {
			log.Warn().Err(err).Msg("Structured timer store write failed")
		}
	}
	if r.broadcast != nil {
		if err := r.broadcast.BroadcastTimer(ctx, st); err != nil {
			log.Debug().Err(err).Msg("Timer broadcast not delivered")
		}
	}
	return nil
}
