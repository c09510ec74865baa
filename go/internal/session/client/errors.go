package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"connectrpc.com/connect"
)

var (
	// ErrNotFound is returned when the session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when the server rejects a command for the
	// session's current state (e.g. pausing an ended session).
	ErrConflict = errors.New("session state conflict")
	// ErrUnavailable marks server-side or transport failures worth retrying.
	ErrUnavailable = errors.New("session service unavailable")
	// ErrInvalidResponse is returned when a response cannot be decoded or
	// fails validation.
	ErrInvalidResponse = errors.New("invalid session response")
)

// Error describes a failed session call.
type Error struct {
	Op         string
	SessionID  string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.SessionID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying on the next poll.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func wrapInvalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
}

// errorForStatus maps an HTTP status code onto the package sentinels.
func errorForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict || status == http.StatusPreconditionFailed:
		return ErrConflict
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrUnavailable
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}

// errorForConnect maps a Connect error code onto the package sentinels.
func errorForConnect(err error) error {
	switch connect.CodeOf(err) {
	case connect.CodeNotFound:
		return ErrNotFound
	case connect.CodeFailedPrecondition, connect.CodeAborted, connect.CodeAlreadyExists:
		return ErrConflict
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded, connect.CodeResourceExhausted, connect.CodeInternal:
		return ErrUnavailable
	case connect.CodeCanceled:
		return context.Canceled
	default:
		return nil
	}
}
