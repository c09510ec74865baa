package engine

import (
	"context"
	"fmt"

	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/playback"
)

// playbackCall is one queued Commander call.
type playbackCall struct {
	action playback.Action
	track  models.Track
}

func (e *Engine) playCurrentLocked() {
	idx := e.snapshot.CurrentTrackIndex
	track, ok := e.tracks.At(idx)
	if !ok {
		e.recordPlaybackLocked(string(playback.ActionPlay), fmt.Errorf("%w: index %d", ErrTrackNotFound, idx))
		return
	}
	e.enqueuePlaybackLocked(playbackCall{action: playback.ActionPlay, track: track})
}

func (e *Engine) pausePlaybackLocked() {
	e.enqueuePlaybackLocked(playbackCall{action: playback.ActionPause})
}

func (e *Engine) stopPlaybackLocked() {
	e.enqueuePlaybackLocked(playbackCall{action: playback.ActionStop})
}

func (e *Engine) enqueuePlaybackLocked(call playbackCall) {
	e.playQueue = append(e.playQueue, call)
	select {
	case e.playWake <- struct{}{}:
	default:
	}
}

// runPlayback dispatches queued calls in the order transitions queued them,
// without holding the engine lock across a Commander call. Calls still
// queued at Stop are dropped.
func (e *Engine) runPlayback(done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-e.playQuit:
			return
		case <-e.playWake:
		}

		for {
			e.mu.Lock()
			if e.stopped {
				e.playQueue = nil
				e.mu.Unlock()
				return
			}
			if len(e.playQueue) == 0 {
				e.mu.Unlock()
				break
			}
			call := e.playQueue[0]
			e.playQueue = e.playQueue[1:]
			e.playBusy = true
			ctx := e.ctx
			e.mu.Unlock()

			err := e.dispatchPlayback(ctx, call)

			e.mu.Lock()
			e.playBusy = false
			hadErr := e.lastPlaybackErr != nil
			e.recordPlaybackLocked(string(call.action), err)
			if hadErr || err != nil {
				e.publishLocked()
			}
			e.mu.Unlock()
		}
	}
}

func (e *Engine) dispatchPlayback(parent context.Context, call playbackCall) error {
	ctx, cancel := context.WithTimeout(parent, e.cfg.PlaybackTimeout)
	defer cancel()

	switch call.action {
	case playback.ActionPlay:
		return e.player.PlayTrack(ctx, call.track)
	case playback.ActionPause:
		return e.player.Pause(ctx)
	default:
		return e.player.Stop(ctx)
	}
}
