package devhost

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/shotclock/go/internal/models"
	"github.com/mcdev12/shotclock/go/internal/session/client"
	"github.com/rs/zerolog/log"
)

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	ID              string         `json:"id,omitempty"`
	AdminID         string         `json:"admin_id,omitempty"`
	SecondsPerTrack int            `json:"seconds_per_track"`
	Tracks          []models.Track `json:"tracks"`
}

// RESTHandler serves the session REST API on top of a Host.
type RESTHandler struct {
	host *Host
}

func NewRESTHandler(host *Host) *RESTHandler {
	return &RESTHandler{host: host}
}

// RegisterRoutes registers the REST routes on mux.
func (h *RESTHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", h.handleGet)
	mux.HandleFunc("GET /api/sessions/{id}/tracks", h.handleTracks)
	mux.HandleFunc("POST /api/sessions/{id}/{action}", h.handleAction)
}

func (h *RESTHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	snap, err := h.host.CreateSession(CreateOptions{
		ID:              req.ID,
		AdminID:         req.AdminID,
		SecondsPerTrack: req.SecondsPerTrack,
		Tracks:          req.Tracks,
	})
	if err != nil {
		writeError(w, http.StatusConflict, "conflict", err)
		return
	}
	writeJSON(w, http.StatusCreated, client.SessionResponse{Session: snap})
}

func (h *RESTHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.host.Get, r.PathValue("id"))
}

func (h *RESTHandler) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.host.Tracks(r.PathValue("id"))
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, client.TracksResponse{Tracks: tracks.Tracks()})
}

func (h *RESTHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	var op func(string) (models.SessionSnapshot, error)
	switch r.PathValue("action") {
	case "start":
		op = h.host.Start
	case "pause":
		op = h.host.Pause
	case "resume":
		op = h.host.Resume
	case "next":
		op = h.host.Next
	case "end":
		op = h.host.End
	case "join":
		op = h.host.Join
	default:
		http.NotFound(w, r)
		return
	}
	h.respond(w, op, r.PathValue("id"))
}

func (h *RESTHandler) respond(w http.ResponseWriter, op func(string) (models.SessionSnapshot, error), sessionID string) {
	snap, err := op(sessionID)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, client.SessionResponse{Session: snap})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrInjected):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusBadRequest, "bad_request"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("devhost: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, client.ErrorResponse{Error: err.Error(), Code: code})
}

// ConnectHandlers returns the Connect unary handlers of the session service,
// keyed by procedure path.
func ConnectHandlers(host *Host) map[string]http.Handler {
	opts := []connect.HandlerOption{connect.WithCodec(client.JSONCodec{})}

	session := func(procedure string, op func(string) (models.SessionSnapshot, error)) http.Handler {
		return connect.NewUnaryHandler(procedure,
			func(ctx context.Context, req *connect.Request[client.SessionRequest]) (*connect.Response[client.SessionResponse], error) {
				snap, err := op(req.Msg.SessionID)
				if err != nil {
					return nil, connectError(err)
				}
				return connect.NewResponse(&client.SessionResponse{Session: snap}), nil
			},
			opts...,
		)
	}

	return map[string]http.Handler{
		client.GetSessionProcedure:    session(client.GetSessionProcedure, host.Get),
		client.StartSessionProcedure:  session(client.StartSessionProcedure, host.Start),
		client.PauseSessionProcedure:  session(client.PauseSessionProcedure, host.Pause),
		client.ResumeSessionProcedure: session(client.ResumeSessionProcedure, host.Resume),
		client.NextTrackProcedure:     session(client.NextTrackProcedure, host.Next),
		client.EndSessionProcedure:    session(client.EndSessionProcedure, host.End),
		client.ListTracksProcedure: connect.NewUnaryHandler(client.ListTracksProcedure,
			func(ctx context.Context, req *connect.Request[client.SessionRequest]) (*connect.Response[client.TracksResponse], error) {
				tracks, err := host.Tracks(req.Msg.SessionID)
				if err != nil {
					return nil, connectError(err)
				}
				return connect.NewResponse(&client.TracksResponse{Tracks: tracks.Tracks()}), nil
			},
			opts...,
		),
	}
}

func connectError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrInjected):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
}
