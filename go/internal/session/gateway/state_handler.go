package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// StateHandler serves the engine state and command endpoints.
type StateHandler struct {
	engine SessionEngine
}

// NewStateHandler creates a state handler.
func NewStateHandler(eng SessionEngine) *StateHandler {
	return &StateHandler{engine: eng}
}

// HandleGetState handles GET /api/session/state.
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.State())
}

// HandleCommand handles POST /api/session/commands/{kind}.
func (h *StateHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	result, err := runCommand(r.Context(), h.engine, kind)
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	status := statusForCommandError(err)
	log.Warn().
		Str("command", kind).
		Int("status", status).
		Str("error", result.Error).
		Msg("session command rejected")
	writeJSON(w, status, result)
}

// RegisterStateRoutes registers the state and command routes.
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/session/state", h.HandleGetState)
	mux.HandleFunc("POST /api/session/commands/{kind}", h.HandleCommand)
}
