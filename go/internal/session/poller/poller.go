// Package poller runs the periodic session fetch. A fetch is always awaited
// to completion, including reconciliation, before the next sleep starts, so
// two fetches never overlap.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Fetcher performs one poll. Returning terminal=true stops the loop.
type Fetcher func(ctx context.Context) (terminal bool, err error)

// Loop is a cancellable fixed-interval poll loop.
type Loop struct {
	clock    clockwork.Clock
	interval time.Duration
	fetch    Fetcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a poll loop. It does nothing until Start is called.
func New(clock clockwork.Clock, interval time.Duration, fetch Fetcher) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	closed := make(chan struct{})
	close(closed)
	return &Loop{
		clock:    clock,
		interval: interval,
		fetch:    fetch,
		done:     closed,
	}
}

// Start launches the loop in the background. No-op if already running.
// The first fetch happens immediately.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		log.Warn().Msg("poll loop already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.done = make(chan struct{})

	go l.run(loopCtx, l.done)

	log.Info().Dur("interval", l.interval).Msg("poll loop started")
}

// Stop cancels the loop mid-sleep or mid-fetch. It does not wait for the
// goroutine to exit (see Wait), so it is safe to call from inside a fetch.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.cancel()
	l.running = false
	log.Info().Msg("poll loop stopped")
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	<-done
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.markStopped(done)

	timer := l.clock.NewTimer(l.interval)
	defer timer.Stop()
	stopAndDrainTimer(timer)

	failures := 0
	for {
		terminal, err := l.fetch(ctx)
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
			log.Debug().Msg("poll cancelled mid-fetch")
			return
		case err != nil:
			failures++
			log.Warn().
				Err(err).
				Int("consecutive_failures", failures).
				Msg("session poll failed, retrying next interval")
		default:
			if failures > 0 {
				log.Info().Int("after_failures", failures).Msg("session poll recovered")
			}
			failures = 0
		}

		if terminal {
			log.Info().Msg("session reached terminal state, poll loop exiting")
			return
		}

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			log.Debug().Msg("poll loop shutdown during sleep")
			return
		case <-timer.Chan():
		}
	}
}

// markStopped clears running state when the loop exits on its own.
func (l *Loop) markStopped(done chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != done {
		return
	}
	if l.running {
		l.cancel()
		l.running = false
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a later Reset
// starts clean.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
