package engine

import (
	"context"
	"fmt"

	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// outcome is the result of applying one snapshot.
type outcome int

const (
	// outcomeDiscarded: stale, foreign or after the session ended.
	outcomeDiscarded outcome = iota
	// outcomeUnchanged: no transition and nothing observers care about.
	outcomeUnchanged
	// outcomeUpdated: no transition but pass-through fields changed.
	outcomeUpdated
	// outcomeTransition: one of the transition rules fired.
	outcomeTransition
)

func (o outcome) published() bool {
	return o >= outcomeUpdated
}

// Reconcile applies a snapshot obtained outside the engine (for example a
// push notification). It is treated as the freshest response so far.
func (e *Engine) Reconcile(snap models.SessionSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.acceptingLocked(); err != nil {
		log.Warn().Err(err).Str("session_id", snap.ID).Msg("ignoring snapshot")
		return
	}
	e.applyLocked(e.issueSeqLocked(), snap)
}

// apply applies a snapshot tagged with the sequence number issued when the
// request that produced it was sent.
func (e *Engine) apply(seq uint64, snap models.SessionSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(seq, snap)
}

// applyLocked runs the transition rules in precedence order:
//
//  1. Ended: stop countdown, polling and playback; terminal from now on.
//  2. Track index changed: reset the countdown. Play if Active, pause if
//     Paused, nothing else in the lobby.
//  3. Became Active from any other status: reset and restart as in 2.
//  4. Became Paused: stop the countdown keeping what is left, pause playback.
//  5. Anything else: no-op.
//
// Rules 3 and 4 fire on edges only, so delivering the same snapshot twice
// does nothing the second time.
func (e *Engine) applyLocked(seq uint64, snap models.SessionSnapshot) outcome {
	if e.terminal || e.stopped {
		return outcomeDiscarded
	}
	if seq <= e.appliedSeq {
		log.Debug().
			Str("session_id", e.sessionID).
			Uint64("seq", seq).
			Uint64("applied_seq", e.appliedSeq).
			Msg("discarding stale snapshot")
		return outcomeDiscarded
	}
	if err := snap.Validate(); err != nil {
		log.Warn().Err(err).Str("session_id", e.sessionID).Msg("discarding invalid snapshot")
		return outcomeDiscarded
	}
	if snap.ID != e.sessionID {
		log.Warn().
			Str("session_id", e.sessionID).
			Str("snapshot_session_id", snap.ID).
			Msg("discarding snapshot for another session")
		return outcomeDiscarded
	}

	prev := e.snapshot
	prevStatus := e.lastKnownStatus
	prevIndex := e.lastKnownIndex

	e.appliedSeq = seq
	e.snapshot = snap
	e.lastKnownStatus = snap.Status
	e.lastKnownIndex = snap.CurrentTrackIndex

	transition := true
	switch {
	case snap.Status == models.SessionStatusEnded:
		e.terminal = true
		e.pendingAdvance = false
		e.stopCountdownLocked()
		e.poller.Stop()
		e.stopPlaybackLocked()

	case snap.CurrentTrackIndex != prevIndex:
		e.pendingAdvance = false
		e.remaining = snap.SecondsPerTrack
		switch snap.Status {
		case models.SessionStatusActive:
			e.startCountdownLocked()
			e.playCurrentLocked()
		case models.SessionStatusPaused:
			e.stopCountdownLocked()
			e.pausePlaybackLocked()
		default:
			e.stopCountdownLocked()
		}

	case snap.Status == models.SessionStatusActive && prevStatus != models.SessionStatusActive:
		e.pendingAdvance = false
		e.remaining = snap.SecondsPerTrack
		e.startCountdownLocked()
		e.playCurrentLocked()

	case snap.Status == models.SessionStatusPaused && prevStatus != models.SessionStatusPaused:
		e.stopCountdownLocked()
		e.pausePlaybackLocked()

	case snap.Status == models.SessionStatusLobby && prevStatus != models.SessionStatusLobby:
		// Sessions are not expected to go back to the lobby; keep the
		// countdown tied to Active regardless.
		e.stopCountdownLocked()
		e.stopPlaybackLocked()

	default:
		transition = false
	}

	if transition {
		log.Info().
			Str("session_id", e.sessionID).
			Str("from", string(prevStatus)).
			Str("to", string(snap.Status)).
			Int("track_index", snap.CurrentTrackIndex).
			Int("seconds_remaining", e.remaining).
			Uint64("seq", seq).
			Msg("session transition")
		e.publishLocked()
		return outcomeTransition
	}
	if passThroughChanged(prev, snap) {
		e.publishLocked()
		return outcomeUpdated
	}
	return outcomeUnchanged
}

func passThroughChanged(a, b models.SessionSnapshot) bool {
	return a.SecondsPerTrack != b.SecondsPerTrack ||
		a.AdminID != b.AdminID ||
		a.InviteCode != b.InviteCode ||
		a.ParticipantCount != b.ParticipantCount ||
		a.TrackCount != b.TrackCount
}

// poll is the poll loop's fetch. A poll that changes nothing also retries
// an auto-advance that failed earlier.
func (e *Engine) poll(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.terminal || e.stopped {
		e.mu.Unlock()
		return true, nil
	}
	seq := e.issueSeqLocked()
	e.mu.Unlock()

	snap, err := e.sessions.GetSession(ctx, e.sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch session: %w", err)
	}

	e.mu.Lock()
	out := e.applyLocked(seq, snap)
	retry := out != outcomeDiscarded && out != outcomeTransition &&
		e.pendingAdvance && !e.advancing &&
		e.lastKnownStatus == models.SessionStatusActive
	e.mu.Unlock()

	if retry {
		log.Info().Str("session_id", e.sessionID).Msg("retrying auto-advance")
		e.advance()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal, nil
}

func (e *Engine) onTick(run uint64, remaining int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if run != e.timerRun || !e.ticking || e.stopped {
		return
	}
	e.remaining = remaining
	e.publishLocked()
}

// onExpire handles the end of a track's countdown. Playback is stopped and,
// with AutoAdvance, the server is asked for the next track. The index is
// never advanced locally; a failed advance is retried by the next poll.
func (e *Engine) onExpire(run uint64) {
	e.mu.Lock()
	// A pause or track change may land after the countdown's last tick but
	// before this callback; the run is then no longer ticking.
	if run != e.timerRun || !e.ticking || e.snapshot.Status != models.SessionStatusActive ||
		e.terminal || e.stopped {
		e.mu.Unlock()
		return
	}
	e.ticking = false
	e.remaining = 0
	e.stopPlaybackLocked()

	log.Info().
		Str("session_id", e.sessionID).
		Int("track_index", e.snapshot.CurrentTrackIndex).
		Bool("auto_advance", e.cfg.AutoAdvance).
		Msg("track countdown expired")

	if e.cfg.AutoAdvance {
		e.pendingAdvance = true
	}
	e.publishLocked()
	auto := e.cfg.AutoAdvance
	e.mu.Unlock()

	if auto {
		e.advance()
	}
}

func (e *Engine) advance() {
	e.mu.Lock()
	if e.advancing || e.terminal || e.stopped {
		e.mu.Unlock()
		return
	}
	e.advancing = true
	seq := e.issueSeqLocked()
	ctx := e.ctx
	e.mu.Unlock()

	snap, err := e.sessions.NextTrack(ctx, e.sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.advancing = false

	if err != nil {
		e.lastErr = &CommandError{Kind: CommandSkip, Err: err}
		log.Error().
			Err(err).
			Str("session_id", e.sessionID).
			Int("track_index", e.snapshot.CurrentTrackIndex).
			Msg("auto-advance failed")
		e.publishLocked()
		return
	}

	e.pendingAdvance = false
	if !e.applyLocked(seq, snap).published() {
		e.publishLocked()
	}
}

func (e *Engine) startCountdownLocked() {
	e.timerRun = e.countdown.Start(e.remaining)
	e.ticking = true
}

func (e *Engine) stopCountdownLocked() {
	e.countdown.Cancel()
	e.ticking = false
}

// recordPlaybackLocked keeps the last playback failure for display. A
// successful command clears it.
func (e *Engine) recordPlaybackLocked(action string, err error) {
	e.lastPlaybackErr = err
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", e.sessionID).
			Str("action", action).
			Msg("playback command failed")
	}
}
