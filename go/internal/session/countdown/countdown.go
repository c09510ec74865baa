// Package countdown implements the per-track visual countdown. It decrements
// once per wall-clock second and is independent of network health; the
// server snapshot stays authoritative.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickFunc receives the run id and the seconds left after a decrement.
type TickFunc func(run uint64, remaining int)

// ExpireFunc is called once per run when the countdown reaches zero.
type ExpireFunc func(run uint64)

// Timer is a cancellable one-second countdown. At most one run is active.
type Timer struct {
	clock    clockwork.Clock
	onTick   TickFunc
	onExpire ExpireFunc

	mu        sync.Mutex
	run       uint64
	remaining int
	running   bool
	cancel    context.CancelFunc
}

// New creates a countdown timer. Either callback may be nil.
func New(clock clockwork.Clock, onTick TickFunc, onExpire ExpireFunc) *Timer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{
		clock:    clock,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start begins a new run from the given number of seconds, cancelling any
// previous run first. The first tick happens one second later. It returns
// the id of the new run. Callbacks carry the run id so callers can drop a
// tick from a cancelled run that raced with Start.
func (t *Timer) Start(from int) uint64 {
	if from < 0 {
		from = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	t.run++
	run := t.run
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.remaining = from
	t.running = true

	// Create the ticker before returning so fake clocks see the waiter.
	ticker := t.clock.NewTicker(time.Second)
	go t.loop(ctx, run, ticker)

	log.Debug().Uint64("run", run).Int("from", from).Msg("countdown started")
	return run
}

// Cancel stops the current run, if any. Safe to call repeatedly.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Remaining returns the seconds left in the current (or last) run.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether a run is ticking.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.running {
		log.Debug().Uint64("run", t.run).Int("remaining", t.remaining).Msg("countdown cancelled")
	}
	t.running = false
}

func (t *Timer) loop(ctx context.Context, run uint64, ticker clockwork.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		t.mu.Lock()
		if t.run != run || !t.running {
			t.mu.Unlock()
			return
		}
		if t.remaining > 0 {
			t.remaining--
		}
		remaining := t.remaining
		expired := remaining == 0
		if expired {
			t.running = false
			if t.cancel != nil {
				t.cancel()
				t.cancel = nil
			}
		}
		t.mu.Unlock()

		if t.onTick != nil {
			t.onTick(run, remaining)
		}
		if expired {
			log.Debug().Uint64("run", run).Msg("countdown expired")
			if t.onExpire != nil {
				t.onExpire(run)
			}
			return
		}
	}
}
