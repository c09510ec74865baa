// Package events publishes session state changes to JetStream so other
// services (scoreboards, analytics, audio agents) can follow a session
// without polling it.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/engine"
)

// EventType names a published event.
type EventType string

const (
	EventTypeSessionStateChanged EventType = "SessionStateChanged"
	EventTypeSessionEnded        EventType = "SessionEnded"
	EventTypeCommandFailed       EventType = "CommandFailed"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StateChangedPayload is sent when the status or the track changes.
type StateChangedPayload struct {
	Status             models.SessionStatus `json:"status"`
	PreviousStatus     models.SessionStatus `json:"previous_status,omitempty"`
	TrackIndex         int                  `json:"track_index"`
	PreviousTrackIndex int                  `json:"previous_track_index"`
	TrackID            string               `json:"track_id,omitempty"`
	SecondsPerTrack    int                  `json:"seconds_per_track"`
}

// SessionEndedPayload is sent once, when the session becomes terminal.
type SessionEndedPayload struct {
	LastTrackIndex int `json:"last_track_index"`
	TrackCount     int `json:"track_count,omitempty"`
}

// CommandFailedPayload is sent when a new command error is surfaced.
type CommandFailedPayload struct {
	Error string `json:"error"`
}

// BuildEvents returns the events that the transition from prev to next
// produces, in publish order. Countdown ticks produce none.
func BuildEvents(prev, next engine.State, now time.Time) ([]Envelope, error) {
	var out []Envelope

	add := func(typ EventType, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		out = append(out, Envelope{
			EventID:   uuid.New().String(),
			EventType: typ,
			SessionID: next.SessionID,
			Timestamp: now.UTC(),
			Payload:   data,
		})
		return nil
	}

	if next.Status != prev.Status || next.TrackIndex != prev.TrackIndex {
		payload := StateChangedPayload{
			Status:             next.Status,
			PreviousStatus:     prev.Status,
			TrackIndex:         next.TrackIndex,
			PreviousTrackIndex: prev.TrackIndex,
			SecondsPerTrack:    next.SecondsPerTrack,
		}
		if next.Track != nil {
			payload.TrackID = next.Track.ID
		}
		if err := add(EventTypeSessionStateChanged, payload); err != nil {
			return nil, err
		}
	}

	if next.Terminal && !prev.Terminal {
		payload := SessionEndedPayload{
			LastTrackIndex: next.TrackIndex,
			TrackCount:     next.Session.TrackCount,
		}
		if err := add(EventTypeSessionEnded, payload); err != nil {
			return nil, err
		}
	}

	if next.LastError != "" && next.LastError != prev.LastError {
		if err := add(EventTypeCommandFailed, CommandFailedPayload{Error: next.LastError}); err != nil {
			return nil, err
		}
	}

	return out, nil
}
