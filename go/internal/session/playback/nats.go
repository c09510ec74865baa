package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

var _ Commander = (*NATSCommander)(nil)

// Publisher is the subset of *nats.Conn the commander needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// CommandMessage is the JSON body sent to the audio agent.
type CommandMessage struct {
	SessionID string        `json:"session_id"`
	Action    Action        `json:"action"`
	Track     *models.Track `json:"track,omitempty"`
	IssuedAt  time.Time     `json:"issued_at"`
}

// NATSCommander forwards playback commands to a separate audio agent over
// core NATS on playback.<session>.<action>.
type NATSCommander struct {
	pub       Publisher
	sessionID string
	prefix    string
	clock     clockwork.Clock
}

// NewNATSCommander creates a commander publishing under the given subject
// prefix (default "playback"). A nil clock uses the real clock.
func NewNATSCommander(pub Publisher, sessionID, prefix string, clock clockwork.Clock) *NATSCommander {
	if prefix == "" {
		prefix = "playback"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NATSCommander{
		pub:       pub,
		sessionID: sessionID,
		prefix:    prefix,
		clock:     clock,
	}
}

// Subject returns the subject used for an action.
func (c *NATSCommander) Subject(action Action) string {
	return fmt.Sprintf("%s.%s.%s", c.prefix, c.sessionID, action)
}

func (c *NATSCommander) PlayTrack(ctx context.Context, track models.Track) error {
	return c.send(ctx, ActionPlay, &track)
}

func (c *NATSCommander) Pause(ctx context.Context) error {
	return c.send(ctx, ActionPause, nil)
}

func (c *NATSCommander) Stop(ctx context.Context) error {
	return c.send(ctx, ActionStop, nil)
}

func (c *NATSCommander) send(ctx context.Context, action Action, track *models.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(CommandMessage{
		SessionID: c.sessionID,
		Action:    action,
		Track:     track,
		IssuedAt:  c.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal playback command: %w", err)
	}

	subject := c.Subject(action)
	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Session-ID": []string{c.sessionID},
			"Action":     []string{string(action)},
		},
	}
	if err := c.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish playback %s: %w", action, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("session_id", c.sessionID).
		Msg("playback command published")
	return nil
}
