package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/shotclock/go/internal/models"
)

// SessionServiceName is the fully-qualified name of the session service.
const SessionServiceName = "shotclock.session.v1.SessionService"

// Procedure paths of the session service.
const (
	GetSessionProcedure    = "/" + SessionServiceName + "/GetSession"
	StartSessionProcedure  = "/" + SessionServiceName + "/StartSession"
	PauseSessionProcedure  = "/" + SessionServiceName + "/PauseSession"
	ResumeSessionProcedure = "/" + SessionServiceName + "/ResumeSession"
	NextTrackProcedure     = "/" + SessionServiceName + "/NextTrack"
	EndSessionProcedure    = "/" + SessionServiceName + "/EndSession"
	ListTracksProcedure    = "/" + SessionServiceName + "/ListTracks"
)

// JSONCodec lets Connect carry plain Go structs as JSON. The session service
// has no protobuf schema, so it replaces the default protojson codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

var _ SessionClient = (*ConnectClient)(nil)

// ConnectClient implements SessionClient over Connect unary RPCs.
type ConnectClient struct {
	getSession    *connect.Client[SessionRequest, SessionResponse]
	startSession  *connect.Client[SessionRequest, SessionResponse]
	pauseSession  *connect.Client[SessionRequest, SessionResponse]
	resumeSession *connect.Client[SessionRequest, SessionResponse]
	nextTrack     *connect.Client[SessionRequest, SessionResponse]
	endSession    *connect.Client[SessionRequest, SessionResponse]
	listTracks    *connect.Client[SessionRequest, TracksResponse]
}

// NewConnectClient creates a Connect session client against baseURL.
func NewConnectClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)

	newSession := func(procedure string) *connect.Client[SessionRequest, SessionResponse] {
		return connect.NewClient[SessionRequest, SessionResponse](httpClient, baseURL+procedure, opts...)
	}
	return &ConnectClient{
		getSession:    newSession(GetSessionProcedure),
		startSession:  newSession(StartSessionProcedure),
		pauseSession:  newSession(PauseSessionProcedure),
		resumeSession: newSession(ResumeSessionProcedure),
		nextTrack:     newSession(NextTrackProcedure),
		endSession:    newSession(EndSessionProcedure),
		listTracks:    connect.NewClient[SessionRequest, TracksResponse](httpClient, baseURL+ListTracksProcedure, opts...),
	}
}

func (c *ConnectClient) GetSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.call(ctx, OpGetSession, c.getSession, sessionID)
}

func (c *ConnectClient) StartSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.call(ctx, OpStartSession, c.startSession, sessionID)
}

func (c *ConnectClient) PauseSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.call(ctx, OpPauseSession, c.pauseSession, sessionID)
}

func (c *ConnectClient) ResumeSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.call(ctx, OpResumeSession, c.resumeSession, sessionID)
}

func (c *ConnectClient) NextTrack(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.call(ctx, OpNextTrack, c.nextTrack, sessionID)
}

func (c *ConnectClient) EndSession(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	return c.call(ctx, OpEndSession, c.endSession, sessionID)
}

func (c *ConnectClient) ListTracks(ctx context.Context, sessionID string) (models.TrackList, error) {
	resp, err := c.listTracks.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID}))
	if err != nil {
		return models.TrackList{}, wrapConnect(OpListTracks, sessionID, err)
	}
	return models.NewTrackList(resp.Msg.Tracks), nil
}

func (c *ConnectClient) call(ctx context.Context, op string, rpc *connect.Client[SessionRequest, SessionResponse], sessionID string) (models.SessionSnapshot, error) {
	resp, err := rpc.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID}))
	if err != nil {
		return models.SessionSnapshot{}, wrapConnect(op, sessionID, err)
	}
	return validated(op, sessionID, resp.Msg.Session)
}

func wrapConnect(op, sessionID string, err error) error {
	e := &Error{Op: op, SessionID: sessionID, Err: err}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		e.Message = connectErr.Message()
		if mapped := errorForConnect(err); mapped != nil {
			e.Err = mapped
		}
	}
	return e
}
