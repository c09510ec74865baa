// Package gateway exposes a running sync engine to a local UI: the current
// state over HTTP, commands over HTTP or WebSocket, and every state change
// pushed to WebSocket clients.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/mcdev12/shotclock/go/internal/session/engine"
	"github.com/rs/zerolog/log"
)

// SessionEngine is the part of the sync engine the gateway uses.
type SessionEngine interface {
	State() engine.State
	Subscribe(buffer int) (<-chan engine.State, func())
	Command(ctx context.Context, kind engine.CommandKind) (engine.State, error)
}

// Config holds gateway configuration.
type Config struct {
	ConnectionConfig ConnectionConfig
	AllowedOrigins   []string
	// SubscriptionBuffer is the engine subscription buffer; states beyond it
	// are coalesced to the newest.
	SubscriptionBuffer int
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig:   DefaultConnectionConfig(),
		AllowedOrigins:     []string{"*"},
		SubscriptionBuffer: 16,
	}
}

// Service wires the engine to the HTTP and WebSocket surfaces.
type Service struct {
	config            Config
	engine            SessionEngine
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// NewService creates a gateway for eng.
func NewService(config Config, eng SessionEngine) *Service {
	s := &Service{
		config: config,
		engine: eng,
	}
	s.connectionManager = NewConnectionManager(config.ConnectionConfig, s.runCommand)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, eng)
	s.stateHandler = NewStateHandler(eng)
	return s
}

// Start forwards engine states to WebSocket clients until ctx is cancelled
// or the engine closes its subscription.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting session gateway")

	go s.connectionManager.Start(ctx)

	updates, cancel := s.engine.Subscribe(s.config.SubscriptionBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session gateway shutting down")
			return
		case state, ok := <-updates:
			if !ok {
				log.Info().Msg("engine subscription closed, gateway stops forwarding")
				return
			}
			msg, err := newMessage(state.SessionID, MessageTypeState, state)
			if err != nil {
				log.Error().Err(err).Msg("failed to build state message")
				continue
			}
			s.connectionManager.Broadcast(msg)
		}
	}
}

// RegisterRoutes registers the gateway routes on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

func (s *Service) runCommand(ctx context.Context, command string) CommandResult {
	result, _ := runCommand(ctx, s.engine, command)
	return result
}

func runCommand(ctx context.Context, eng SessionEngine, command string) (CommandResult, error) {
	result := CommandResult{Command: command}

	kind, err := engine.ParseCommandKind(command)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	state, err := eng.Command(ctx, kind)
	result.State = &state
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.OK = true
	return result, nil
}

// statusForCommandError maps engine command errors onto HTTP status codes.
func statusForCommandError(err error) int {
	var cmdErr *engine.CommandError
	switch {
	case errors.Is(err, engine.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrCommandInFlight), errors.Is(err, engine.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotStarted), errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &cmdErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
