package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/shotclock/go/internal/session/engine"
)

// Message is the envelope pushed to WebSocket clients.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MessageType identifies the payload of a Message.
type MessageType string

const (
	MessageTypeState         MessageType = "State"
	MessageTypeCommandResult MessageType = "CommandResult"
)

// ClientMessage is what a WebSocket client may send, e.g. {"command":"pause"}.
type ClientMessage struct {
	Command string `json:"command"`
}

// CommandResult reports the outcome of a command sent over HTTP or WebSocket.
type CommandResult struct {
	Command string        `json:"command"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	State   *engine.State `json:"state,omitempty"`
}

func newMessage(sessionID string, typ MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}
