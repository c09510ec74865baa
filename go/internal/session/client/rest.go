package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mcdev12/shotclock/go/internal/models"
)

var _ SessionClient = (*RESTClient)(nil)

// RESTClient implements SessionClient over the JSON REST API:
//
//	GET  /api/sessions/{id}
//	POST /api/sessions/{id}/{start|pause|resume|next|end}
//	GET  /api/sessions/{id}/tracks
type RESTClient struct {
	base *BaseClient
}

// NewRESTClient creates a REST session client rooted at baseURL.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	base := NewBaseClient(strings.TrimRight(baseURL, "/"))
	if timeout > 0 {
		base.SetTimeout(timeout)
	}
	base.SetHeader("Content-Type", "application/json")
	return &RESTClient{base: base}
}

// Base exposes the underlying HTTP client for header/timeout tweaks.
func (c *RESTClient) Base() *BaseClient {
	return c.base
}

func (c *RESTClient) GetSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.session(ctx, OpGetSession, http.MethodGet, sessionID, "")
}

func (c *RESTClient) StartSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.session(ctx, OpStartSession, http.MethodPost, sessionID, "start")
}

func (c *RESTClient) PauseSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.session(ctx, OpPauseSession, http.MethodPost, sessionID, "pause")
}

func (c *RESTClient) ResumeSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.session(ctx, OpResumeSession, http.MethodPost, sessionID, "resume")
}

func (c *RESTClient) NextTrack(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.session(ctx, OpNextTrack, http.MethodPost, sessionID, "next")
}

func (c *RESTClient) EndSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.session(ctx, OpEndSession, http.MethodPost, sessionID, "end")
}

func (c *RESTClient) ListTracks(ctx context.Context, sessionID string) (models.TrackList, error) {
	body, err := c.base.Get(ctx, sessionPath(sessionID, "tracks"))
	if err != nil {
		return models.TrackList{}, c.wrap(OpListTracks, sessionID, err)
	}

	var resp TracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.TrackList{}, &Error{Op: OpListTracks, SessionID: sessionID, Err: wrapInvalid(err)}
	}
	return models.NewTrackList(resp.Tracks), nil
}

func (c *RESTClient) session(ctx context.Context, op, method, sessionID, action string) (models.SessionSnapshot, error) {
	body, err := c.base.MakeRequest(ctx, method, sessionPath(sessionID, action), nil)
	if err != nil {
		return models.SessionSnapshot{}, c.wrap(op, sessionID, err)
	}

	var resp SessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.SessionSnapshot{}, &Error{Op: op, SessionID: sessionID, Err: wrapInvalid(err)}
	}
	return validated(op, sessionID, resp.Session)
}

func (c *RESTClient) wrap(op, sessionID string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		e := &Error{
			Op:         op,
			SessionID:  sessionID,
			StatusCode: statusErr.StatusCode,
			Err:        errorForStatus(statusErr.StatusCode),
		}
		var body ErrorResponse
		if json.Unmarshal(statusErr.Body, &body) == nil {
			e.Message = body.Error
		}
		return e
	}
	return &Error{Op: op, SessionID: sessionID, Err: err}
}

func sessionPath(sessionID, action string) string {
	p := fmt.Sprintf("/api/sessions/%s", url.PathEscape(sessionID))
	if action != "" {
		p += "/" + action
	}
	return p
}
