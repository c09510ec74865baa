// Package playback holds the audio capability the sync engine drives. The
// engine treats every call as fire-and-forget: a failure is reported for
// display but never changes session state.
package playback

import (
	"context"
	"sync"

	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Commander starts, pauses and stops audio for the current track.
// Implementations should return quickly; the engine bounds each call with a
// short timeout.
type Commander interface {
	PlayTrack(ctx context.Context, track models.Track) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
}

var (
	_ Commander = (*LogCommander)(nil)
	_ Commander = (*Recorder)(nil)
)

// LogCommander only logs. Used for headless runs where another device plays
// the audio.
type LogCommander struct {
	sessionID string
}

// NewLogCommander creates a commander that logs every call.
func NewLogCommander(sessionID string) *LogCommander {
	return &LogCommander{sessionID: sessionID}
}

func (c *LogCommander) PlayTrack(ctx context.Context, track models.Track) error {
	log.Info().
		Str("session_id", c.sessionID).
		Str("track_id", track.ID).
		Str("track", track.Name).
		Str("artist", track.Artist).
		Msg("playback: play track")
	return nil
}

func (c *LogCommander) Pause(ctx context.Context) error {
	log.Info().Str("session_id", c.sessionID).Msg("playback: pause")
	return nil
}

func (c *LogCommander) Stop(ctx context.Context) error {
	log.Info().Str("session_id", c.sessionID).Msg("playback: stop")
	return nil
}

// Action names a playback command.
type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionStop  Action = "stop"
)

// Call is one recorded command.
type Call struct {
	Action Action
	Track  models.Track
}

// Recorder keeps every command in memory. An error set with SetErr is
// returned from every later call after it is recorded.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

func (r *Recorder) PlayTrack(ctx context.Context, track models.Track) error {
	return r.record(Call{Action: ActionPlay, Track: track})
}

func (r *Recorder) Pause(ctx context.Context) error {
	return r.record(Call{Action: ActionPause})
}

func (r *Recorder) Stop(ctx context.Context) error {
	return r.record(Call{Action: ActionStop})
}

// Calls returns a copy of the recorded commands.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many commands of the given action were recorded.
func (r *Recorder) Count(action Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

// SetErr changes the error returned by later calls.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.err
}
