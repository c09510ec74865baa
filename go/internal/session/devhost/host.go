// Package devhost is an in-memory session backend for local runs and tests.
// It implements the server-side state machine (Lobby → Active ⇄ Paused →
// Ended) behind the same REST and Connect surfaces the client uses.
package devhost

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/client"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("invalid session state for operation")
	// ErrInjected is returned for failures queued with Fail.
	ErrInjected = errors.New("injected failure")
)

// CreateOptions configures a new hosted session.
type CreateOptions struct {
	ID              string
	AdminID         string
	SecondsPerTrack int
	Tracks          []models.Track
}

type hostedSession struct {
	snapshot models.SessionSnapshot
	tracks   models.TrackList
}

// Host keeps sessions in memory.
type Host struct {
	mu       sync.Mutex
	sessions map[string]*hostedSession
	failures map[string]int
}

// NewHost creates an empty host.
func NewHost() *Host {
	return &Host{
		sessions: make(map[string]*hostedSession),
		failures: make(map[string]int),
	}
}

// CreateSession registers a session in the lobby.
func (h *Host) CreateSession(opts CreateOptions) (models.SessionSnapshot, error) {
	if opts.SecondsPerTrack <= 0 {
		opts.SecondsPerTrack = 60
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.sessions[opts.ID]; exists {
		return models.SessionSnapshot{}, fmt.Errorf("session %s already exists", opts.ID)
	}

	tracks := models.NewTrackList(opts.Tracks)
	s := &hostedSession{
		snapshot: models.SessionSnapshot{
			ID:                opts.ID,
			Status:            models.SessionStatusLobby,
			CurrentTrackIndex: -1,
			SecondsPerTrack:   opts.SecondsPerTrack,
			AdminID:           opts.AdminID,
			InviteCode:        strings.ToUpper(uuid.New().String()[:6]),
			TrackCount:        tracks.Len(),
		},
		tracks: tracks,
	}
	h.sessions[opts.ID] = s

	log.Info().
		Str("session_id", opts.ID).
		Int("tracks", tracks.Len()).
		Int("seconds_per_track", opts.SecondsPerTrack).
		Msg("devhost: session created")
	return s.snapshot, nil
}

// Fail makes the next n calls of op (see client.Op* names) fail.
func (h *Host) Fail(op string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = n
}

// Join bumps the participant count.
func (h *Host) Join(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate("join", sessionID, func(s *hostedSession) error {
		if s.snapshot.Status.IsTerminal() {
			return ErrInvalidState
		}
		s.snapshot.ParticipantCount++
		return nil
	})
}

func (h *Host) Get(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate(client.OpGetSession, sessionID, func(*hostedSession) error { return nil })
}

func (h *Host) Start(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate(client.OpStartSession, sessionID, func(s *hostedSession) error {
		if s.snapshot.Status != models.SessionStatusLobby {
			return ErrInvalidState
		}
		if s.tracks.Len() == 0 {
			return fmt.Errorf("%w: no tracks", ErrInvalidState)
		}
		s.snapshot.Status = models.SessionStatusActive
		s.snapshot.CurrentTrackIndex = 0
		return nil
	})
}

func (h *Host) Pause(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate(client.OpPauseSession, sessionID, func(s *hostedSession) error {
		switch s.snapshot.Status {
		case models.SessionStatusActive:
			s.snapshot.Status = models.SessionStatusPaused
			return nil
		case models.SessionStatusPaused:
			return nil
		default:
			return ErrInvalidState
		}
	})
}

func (h *Host) Resume(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate(client.OpResumeSession, sessionID, func(s *hostedSession) error {
		switch s.snapshot.Status {
		case models.SessionStatusPaused:
			s.snapshot.Status = models.SessionStatusActive
			return nil
		case models.SessionStatusActive:
			return nil
		default:
			return ErrInvalidState
		}
	})
}

// Next advances to the following track, ending the session after the last one.
func (h *Host) Next(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate(client.OpNextTrack, sessionID, func(s *hostedSession) error {
		if s.snapshot.Status != models.SessionStatusActive && s.snapshot.Status != models.SessionStatusPaused {
			return ErrInvalidState
		}
		if s.snapshot.CurrentTrackIndex+1 >= s.tracks.Len() {
			s.snapshot.Status = models.SessionStatusEnded
			return nil
		}
		s.snapshot.CurrentTrackIndex++
		return nil
	})
}

func (h *Host) End(sessionID string) (models.SessionSnapshot, error) {
	return h.mutate(client.OpEndSession, sessionID, func(s *hostedSession) error {
		s.snapshot.Status = models.SessionStatusEnded
		return nil
	})
}

// Tracks returns the session playlist.
func (h *Host) Tracks(sessionID string) (models.TrackList, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.injectedLocked(client.OpListTracks); err != nil {
		return models.TrackList{}, err
	}
	s, ok := h.sessions[sessionID]
	if !ok {
		return models.TrackList{}, ErrSessionNotFound
	}
	return s.tracks, nil
}

func (h *Host) mutate(op, sessionID string, fn func(*hostedSession) error) (models.SessionSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.injectedLocked(op); err != nil {
		return models.SessionSnapshot{}, err
	}
	s, ok := h.sessions[sessionID]
	if !ok {
		return models.SessionSnapshot{}, ErrSessionNotFound
	}

	before := s.snapshot.Status
	if err := fn(s); err != nil {
		log.Debug().
			Err(err).
			Str("op", op).
			Str("session_id", sessionID).
			Str("status", string(before)).
			Msg("devhost: operation rejected")
		return models.SessionSnapshot{}, err
	}

	if before != s.snapshot.Status {
		log.Info().
			Str("op", op).
			Str("session_id", sessionID).
			Str("from", string(before)).
			Str("to", string(s.snapshot.Status)).
			Int("track_index", s.snapshot.CurrentTrackIndex).
			Msg("devhost: session transition")
	}
	return s.snapshot, nil
}

func (h *Host) injectedLocked(op string) error {
	if n := h.failures[op]; n > 0 {
		h.failures[op] = n - 1
		return fmt.Errorf("%w: %s", ErrInjected, op)
	}
	return nil
}
