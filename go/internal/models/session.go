package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SessionStatus defines the server-side state of a party session.
type SessionStatus string

const (
	SessionStatusLobby  SessionStatus = "LOBBY"
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusPaused SessionStatus = "PAUSED"
	SessionStatusEnded  SessionStatus = "ENDED"
)

// ErrUnknownStatus is returned when a status string matches none of the known spellings.
var ErrUnknownStatus = errors.New("unknown session status")

// ParseSessionStatus accepts the spellings used by the different game backends
// (ShotClock, TuneTrivia) and normalises them.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lobby", "waiting", "not_started", "created":
		return SessionStatusLobby, nil
	case "active", "playing", "in_progress", "started":
		return SessionStatusActive, nil
	case "paused":
		return SessionStatusPaused, nil
	case "ended", "completed", "finished", "cancelled":
		return SessionStatusEnded, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsTerminal reports whether no further transitions can happen.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusEnded
}

func (s SessionStatus) String() string {
	return string(s)
}

// UnmarshalJSON normalises the status while decoding.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("session status: %w", err)
	}
	parsed, err := ParseSessionStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SessionSnapshot is the server-authoritative view of a session. It is
// replaced wholesale on every fetch, never patched field by field.
type SessionSnapshot struct {
	ID                string        `json:"id"`
	Status            SessionStatus `json:"status"`
	CurrentTrackIndex int           `json:"current_track_index"`
	SecondsPerTrack   int           `json:"seconds_per_track"`

	// Administrative fields, passed through untouched.
	AdminID          string         `json:"admin_id,omitempty"`
	InviteCode       string         `json:"invite_code,omitempty"`
	ParticipantCount int            `json:"participant_count,omitempty"`
	TrackCount       int            `json:"track_count,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields the sync engine depends on.
func (s SessionSnapshot) Validate() error {
	if s.ID == "" {
		return errors.New("snapshot: missing id")
	}
	switch s.Status {
	case SessionStatusLobby, SessionStatusActive, SessionStatusPaused, SessionStatusEnded:
	default:
		return fmt.Errorf("snapshot %s: %w: %q", s.ID, ErrUnknownStatus, s.Status)
	}
	if s.CurrentTrackIndex < -1 {
		return fmt.Errorf("snapshot %s: invalid track index %d", s.ID, s.CurrentTrackIndex)
	}
	if s.SecondsPerTrack <= 0 {
		return fmt.Errorf("snapshot %s: seconds per track must be positive, got %d", s.ID, s.SecondsPerTrack)
	}
	return nil
}
