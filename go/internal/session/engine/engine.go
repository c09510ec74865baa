// Package engine is the session sync engine. It reconciles server snapshots
// against local countdown and playback state, drives the poll loop and the
// per-track countdown, and dispatches user commands.
//
// All state lives behind one mutex. Network calls are made without it and
// every call is tagged with a sequence number when issued, so a response
// that resolves after a fresher one is dropped instead of applied.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/client"
	"github.com/mcdev12/shotclock/go/internal/session/countdown"
	"github.com/mcdev12/shotclock/go/internal/session/playback"
	"github.com/mcdev12/shotclock/go/internal/session/poller"
	"github.com/rs/zerolog/log"
)

// Config holds engine settings.
type Config struct {
	// SessionID is taken from the initial snapshot when empty.
	SessionID    string
	PollInterval time.Duration
	// AutoAdvance makes this client call NextTrack when the countdown
	// expires. Participant clients that only follow the server turn it off.
	AutoAdvance     bool
	PlaybackTimeout time.Duration
	Clock           clockwork.Clock
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		AutoAdvance:     true,
		PlaybackTimeout: 2 * time.Second,
		Clock:           clockwork.NewRealClock(),
	}
}

// Engine keeps one client's view of a session in sync with the server.
type Engine struct {
	cfg      Config
	sessions client.SessionClient
	player   playback.Commander

	countdown *countdown.Timer
	poller    *poller.Loop

	mu        sync.Mutex
	sessionID string
	started   bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc

	snapshot models.SessionSnapshot
	tracks   models.TrackList

	// local playback state
	remaining       int
	ticking         bool
	timerRun        uint64
	lastKnownIndex  int
	lastKnownStatus models.SessionStatus
	terminal        bool

	pendingAdvance bool
	advancing      bool
	inFlight       map[CommandKind]bool

	issuedSeq  uint64
	appliedSeq uint64

	lastErr         error
	lastPlaybackErr error

	playQueue []playbackCall
	playBusy  bool
	playWake  chan struct{}
	playQuit  chan struct{}
	playDone  chan struct{}

	subs    map[int]chan State
	nextSub int
}

// New creates an engine. Zero durations and a nil clock fall back to
// DefaultConfig; AutoAdvance is taken as given.
func New(cfg Config, sessions client.SessionClient, player playback.Commander) *Engine {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PlaybackTimeout <= 0 {
		cfg.PlaybackTimeout = def.PlaybackTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}

	e := &Engine{
		cfg:            cfg,
		sessions:       sessions,
		player:         player,
		sessionID:      cfg.SessionID,
		lastKnownIndex: -1,
		inFlight:       make(map[CommandKind]bool),
		subs:           make(map[int]chan State),
		playWake:       make(chan struct{}, 1),
		playQuit:       make(chan struct{}),
	}
	e.countdown = countdown.New(cfg.Clock, e.onTick, e.onExpire)
	e.poller = poller.New(cfg.Clock, cfg.PollInterval, e.poll)
	return e
}

// Start initialises local state from the initial snapshot and launches the
// poll loop. If tracks is empty the playlist is fetched with ListTracks.
// An Active session starts counting down and playing right away, a Paused
// one is shown paused, an Ended one is shown complete without polling.
// ctx bounds the lifetime of the engine's background work.
func (e *Engine) Start(ctx context.Context, initial models.SessionSnapshot, tracks models.TrackList) error {
	if err := initial.Validate(); err != nil {
		return fmt.Errorf("invalid initial snapshot: %w", err)
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	if e.sessionID == "" {
		e.sessionID = initial.ID
	}
	if e.sessionID != initial.ID {
		e.mu.Unlock()
		return fmt.Errorf("initial snapshot is for session %s, engine is for %s", initial.ID, e.sessionID)
	}
	e.started = true
	e.mu.Unlock()

	if tracks.Len() == 0 && !initial.Status.IsTerminal() {
		fetched, err := e.sessions.ListTracks(ctx, initial.ID)
		if err != nil {
			e.mu.Lock()
			e.started = false
			e.mu.Unlock()
			return fmt.Errorf("failed to fetch tracks: %w", err)
		}
		tracks = fetched
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.playDone = make(chan struct{})
	go e.runPlayback(e.playDone)
	e.tracks = tracks
	e.snapshot = initial
	e.appliedSeq = e.issueSeqLocked()
	e.lastKnownIndex = initial.CurrentTrackIndex
	e.lastKnownStatus = initial.Status
	e.remaining = initial.SecondsPerTrack

	switch initial.Status {
	case models.SessionStatusActive:
		e.startCountdownLocked()
		e.playCurrentLocked()
	case models.SessionStatusEnded:
		e.terminal = true
	}

	if !e.terminal {
		e.poller.Start(e.ctx)
	}

	log.Info().
		Str("session_id", e.sessionID).
		Str("status", string(initial.Status)).
		Int("track_index", initial.CurrentTrackIndex).
		Int("tracks", tracks.Len()).
		Bool("auto_advance", e.cfg.AutoAdvance).
		Msg("session sync engine started")

	e.publishLocked()
	return nil
}

// Stop cancels the poll loop and the countdown and closes every
// subscription. It is idempotent, never blocks on the loops and may be
// called from any goroutine and in any state.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	e.stopped = true
	if e.cancel != nil {
		e.cancel()
	}
	e.poller.Stop()
	e.stopCountdownLocked()
	// Audio is left as it is; the commander's process owns it past Stop.
	close(e.playQuit)
	e.publishLocked()
	e.closeSubsLocked()

	log.Info().Str("session_id", e.sessionID).Msg("session sync engine stopped")
}

// Wait blocks until the poll loop and playback goroutines have exited.
func (e *Engine) Wait() {
	e.poller.Wait()

	e.mu.Lock()
	done := e.playDone
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SessionID returns the id of the session this engine follows.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

func (e *Engine) acceptingLocked() error {
	if e.stopped {
		return ErrStopped
	}
	// ctx is set once the track list is loaded.
	if !e.started || e.ctx == nil {
		return ErrNotStarted
	}
	return nil
}

func (e *Engine) issueSeqLocked() uint64 {
	e.issuedSeq++
	return e.issuedSeq
}
