package engine

import (
	"github.com/mcdev12/shotclock/go/internal/models"
)

// State is the read-only view of the engine handed to observers.
type State struct {
	SessionID         string                 `json:"session_id"`
	Status            models.SessionStatus   `json:"status"`
	TrackIndex        int                    `json:"track_index"`
	Track             *models.Track          `json:"track,omitempty"`
	SecondsRemaining  int                    `json:"seconds_remaining"`
	SecondsPerTrack   int                    `json:"seconds_per_track"`
	Ticking           bool                   `json:"ticking"`
	Polling           bool                   `json:"polling"`
	Terminal          bool                   `json:"terminal"`
	PendingAdvance    bool                   `json:"pending_advance"`
	InFlight          []CommandKind          `json:"in_flight,omitempty"`
	LastError         string                 `json:"last_error,omitempty"`
	LastPlaybackError string                 `json:"last_playback_error,omitempty"`
	AppliedSeq        uint64                 `json:"applied_seq"`
	Session           models.SessionSnapshot `json:"session"`
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	s := State{
		SessionID:        e.sessionID,
		Status:           e.snapshot.Status,
		TrackIndex:       e.snapshot.CurrentTrackIndex,
		SecondsRemaining: e.remaining,
		SecondsPerTrack:  e.snapshot.SecondsPerTrack,
		Ticking:          e.ticking,
		Polling:          e.poller.Running(),
		Terminal:         e.terminal,
		PendingAdvance:   e.pendingAdvance,
		AppliedSeq:       e.appliedSeq,
		Session:          e.snapshot,
	}
	if track, ok := e.tracks.At(e.snapshot.CurrentTrackIndex); ok {
		s.Track = &track
	}
	for _, kind := range []CommandKind{CommandStart, CommandPause, CommandResume, CommandSkip, CommandEnd} {
		if e.inFlight[kind] {
			s.InFlight = append(s.InFlight, kind)
		}
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	if e.lastPlaybackErr != nil {
		s.LastPlaybackError = e.lastPlaybackErr.Error()
	}
	return s
}

// Subscribe registers an observer. Every state change is sent on the
// returned channel; a slow observer loses the oldest pending state, never
// the newest. The channel is closed by cancel or by Stop.
func (e *Engine) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		ch <- e.stateLocked()
		close(ch)
		return ch, func() {}
	}

	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	if e.started {
		ch <- e.stateLocked()
	}

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(sub)
		}
	}
}

func (e *Engine) publishLocked() {
	if len(e.subs) == 0 {
		return
	}
	s := e.stateLocked()
	for _, ch := range e.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest pending state.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (e *Engine) closeSubsLocked() {
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
}
