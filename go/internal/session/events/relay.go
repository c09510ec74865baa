package events

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/shotclock/go/internal/session/engine"
	"github.com/rs/zerolog/log"
)

// StateSource is the part of the sync engine the relay follows.
type StateSource interface {
	Subscribe(buffer int) (<-chan engine.State, func())
}

// Relay turns engine state changes into published events.
type Relay struct {
	source    StateSource
	publisher Publisher
	clock     clockwork.Clock
}

// NewRelay creates a relay. A nil clock uses the real clock.
func NewRelay(source StateSource, publisher Publisher, clock clockwork.Clock) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{source: source, publisher: publisher, clock: clock}
}

// Run publishes events until ctx is cancelled or the engine closes the
// subscription. Publish failures are logged; the next change is still
// published.
func (r *Relay) Run(ctx context.Context) {
	updates, cancel := r.source.Subscribe(32)
	defer cancel()

	var prev engine.State
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				log.Info().Msg("event relay stopped, engine subscription closed")
				return
			}
			if first {
				// The first state is the baseline, not a change.
				prev, first = next, false
				continue
			}
			r.publish(ctx, prev, next)
			prev = next
		}
	}
}

func (r *Relay) publish(ctx context.Context, prev, next engine.State) {
	envs, err := BuildEvents(prev, next, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("session_id", next.SessionID).Msg("failed to build session events")
		return
	}
	for _, env := range envs {
		if err := r.publisher.Publish(ctx, env); err != nil {
			log.Error().
				Err(err).
				Str("session_id", env.SessionID).
				Str("event_type", string(env.EventType)).
				Msg("failed to publish session event")
		}
	}
}
