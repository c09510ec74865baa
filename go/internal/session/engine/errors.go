package engine

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted  = errors.New("engine already started")
	ErrNotStarted      = errors.New("engine not started")
	ErrStopped         = errors.New("engine stopped")
	ErrSessionEnded    = errors.New("session has ended")
	ErrCommandInFlight = errors.New("command already in flight")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrTrackNotFound   = errors.New("no track at current index")
)

// CommandError wraps a failed session command. Local state is left at its
// last server-confirmed value when one is returned.
type CommandError struct {
	Kind CommandKind
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command failed: %v", e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
