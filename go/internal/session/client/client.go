// Package client talks to the session backend. Every call returns the full
// resulting snapshot so the sync engine can reconcile from absolute state.
package client

import (
	"context"

	"github.com/mcdev12/shotclock/go/internal/models"
)

// SessionClient is the network surface the sync engine needs.
type SessionClient interface {
	GetSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	StartSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	PauseSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	ResumeSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	NextTrack(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	EndSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error)
	ListTracks(ctx context.Context, sessionID string) (models.TrackList, error)
}

// Operation names, used in errors and logs.
const (
	OpGetSession    = "get_session"
	OpStartSession  = "start_session"
	OpPauseSession  = "pause_session"
	OpResumeSession = "resume_session"
	OpNextTrack     = "next_track"
	OpEndSession    = "end_session"
	OpListTracks    = "list_tracks"
)

// SessionRequest identifies the session an RPC applies to.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// SessionResponse wraps the snapshot returned by every session RPC.
type SessionResponse struct {
	Session models.SessionSnapshot `json:"session"`
}

// TracksResponse carries the session playlist.
type TracksResponse struct {
	Tracks []models.Track `json:"tracks"`
}

// ErrorResponse is the JSON error body of the REST API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func validated(op, sessionID string, snap models.SessionSnapshot) (models.SessionSnapshot, error) {
	if err := snap.Validate(); err != nil {
		return models.SessionSnapshot{}, &Error{Op: op, SessionID: sessionID, Err: wrapInvalid(err)}
	}
	return snap, nil
}
