package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CommandKind names a user-issued session command.
type CommandKind string

const (
	CommandStart  CommandKind = "start"
	CommandPause  CommandKind = "pause"
	CommandResume CommandKind = "resume"
	CommandSkip   CommandKind = "skip"
	CommandEnd    CommandKind = "end"
)

// ParseCommandKind maps a transport-level name onto a CommandKind. "next" is
// accepted as an alias of skip.
func ParseCommandKind(s string) (CommandKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return CommandStart, nil
	case "pause":
		return CommandPause, nil
	case "resume":
		return CommandResume, nil
	case "skip", "next":
		return CommandSkip, nil
	case "end":
		return CommandEnd, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

type sessionCall func(ctx context.Context, sessionID string) (models.SessionSnapshot, error)

func (e *Engine) callFor(kind CommandKind) (sessionCall, bool) {
	switch kind {
	case CommandStart:
		return e.sessions.StartSession, true
	case CommandPause:
		return e.sessions.PauseSession, true
	case CommandResume:
		return e.sessions.ResumeSession, true
	case CommandSkip:
		return e.sessions.NextTrack, true
	case CommandEnd:
		return e.sessions.EndSession, true
	}
	return nil, false
}

// Command issues a session command and reconciles the returned snapshot.
// Nothing is applied optimistically: on failure the state is unchanged, the
// error is recorded as LastError and returned as a *CommandError. A second
// command of the same kind is rejected while the first is in flight.
func (e *Engine) Command(ctx context.Context, kind CommandKind) (State, error) {
	call, ok := e.callFor(kind)
	if !ok {
		return e.State(), fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}

	e.mu.Lock()
	if err := e.acceptingLocked(); err != nil {
		e.mu.Unlock()
		return e.State(), err
	}
	if e.terminal {
		e.mu.Unlock()
		return e.State(), ErrSessionEnded
	}
	if e.inFlight[kind] {
		e.mu.Unlock()
		return e.State(), ErrCommandInFlight
	}
	e.inFlight[kind] = true
	seq := e.issueSeqLocked()
	e.mu.Unlock()

	log.Info().
		Str("session_id", e.sessionID).
		Str("command", string(kind)).
		Uint64("seq", seq).
		Msg("issuing session command")

	snap, err := call(ctx, e.sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, kind)

	if err != nil {
		cmdErr := &CommandError{Kind: kind, Err: err}
		e.lastErr = cmdErr
		log.Error().
			Err(err).
			Str("session_id", e.sessionID).
			Str("command", string(kind)).
			Msg("session command failed")
		e.publishLocked()
		return e.stateLocked(), cmdErr
	}

	hadErr := e.lastErr != nil
	e.lastErr = nil
	if out := e.applyLocked(seq, snap); !out.published() && hadErr {
		e.publishLocked()
	}
	return e.stateLocked(), nil
}

// DismissError clears LastError.
func (e *Engine) DismissError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastErr == nil {
		return
	}
	e.lastErr = nil
	e.publishLocked()
}
