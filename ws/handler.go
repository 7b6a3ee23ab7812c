// Package ws serves JSON-RPC 2.0 over WebSocket.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/chat"
	"github.com/omniassist/server/rpc"
	"github.com/omniassist/server/session"
	"github.com/omniassist/server/voice"
	"github.com/omniassist/server/watch"
)

var errMissingParams = errors.New("missing params")

// VoiceAssistant handles spoken or typed commands.
type VoiceAssistant interface {
	Handle(ctx context.Context, command string) voice.Result
}

type Deps struct {
	Sessions    *session.Manager
	Chat        *chat.Manager
	SessionList *watch.SessionListWatcher
	Assistant   chat.Assistant
	Voice       VoiceAssistant
}

// RPCHandler handles JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	token   string
	devMode bool
	Deps
}

func NewRPCHandler(token string, devMode bool, deps Deps) *RPCHandler {
	return &RPCHandler{
		token:   token,
		devMode: devMode,
		Deps:    deps,
	}
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	h.handleConnection(r.Context(), conn)
}

func (h *RPCHandler) handleConnection(ctx context.Context, wsConn *websocket.Conn) {
	connID := uuid.Must(uuid.NewV7()).String()
	log := slog.With("connId", connID)
	log.Info("new websocket connection")

	state := &rpcConnState{
		connID:   connID,
		attached: make(map[string]struct{}),
		chat:     h.Chat,
		log:      log,
	}

	handler := &rpcMethodHandler{
		RPCHandler: h,
		state:      state,
		log:        log,
	}

	rpcConn := jsonrpc2.NewConn(ctx, newWebSocketStream(wsConn), jsonrpc2.AsyncHandler(handler))
	state.setConn(rpcConn)

	<-rpcConn.DisconnectNotify()

	state.cleanup()
	h.SessionList.CleanupConnection(connID)
	log.Info("connection closed")
}

// rpcConnState tracks per-connection state.
type rpcConnState struct {
	mu       sync.Mutex
	connID   string
	attached map[string]struct{}
	chat     *chat.Manager
	conn     *jsonrpc2.Conn
	log      *slog.Logger
}

func (s *rpcConnState) setConn(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *rpcConnState) attach(sessionID string, conn *jsonrpc2.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attached[sessionID]; !exists {
		s.chat.Subscribe(sessionID, conn)
		s.attached[sessionID] = struct{}{}
	}
}

func (s *rpcConnState) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID := range s.attached {
		s.chat.Unsubscribe(sessionID, s.conn)
		s.log.Debug("detached from session", "sessionId", sessionID)
	}
}

// rpcMethodHandler handles JSON-RPC method calls.
type rpcMethodHandler struct {
	*RPCHandler
	state         *rpcConnState
	log           *slog.Logger
	authenticated bool
	authMu        sync.Mutex
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	// Auth must be the first request
	if !h.isAuthenticated() {
		if req.Method != "auth" {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
			conn.Close()
			return
		}
		h.handleAuth(ctx, conn, req)
		return
	}

	switch req.Method {
	case "session.list":
		h.handleSessionList(ctx, conn, req)
	case "session.get":
		h.handleSessionGet(ctx, conn, req)
	case "session.create":
		h.handleSessionCreate(ctx, conn, req)
	case "session.select":
		h.handleSessionSelect(ctx, conn, req)
	case "session.delete":
		h.handleSessionDelete(ctx, conn, req)
	case "session.toggle_pin":
		h.handleSessionTogglePin(ctx, conn, req)
	case "session.rename":
		h.handleSessionRename(ctx, conn, req)
	case "session.list.subscribe":
		h.handleSessionListSubscribe(ctx, conn, req)
	case "session.list.unsubscribe":
		h.handleSessionListUnsubscribe(ctx, conn, req)
	case "chat.attach":
		h.handleAttach(ctx, conn, req)
	case "chat.message":
		h.handleMessage(ctx, conn, req)
	case "assistant.ask":
		h.handleAsk(ctx, conn, req)
	case "assistant.command":
		h.handleCommand(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) isAuthenticated() bool {
	h.authMu.Lock()
	defer h.authMu.Unlock()
	return h.authenticated
}

func (h *rpcMethodHandler) setAuthenticated() {
	h.authMu.Lock()
	h.authenticated = true
	h.authMu.Unlock()
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.AuthParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		conn.Close()
		return
	}

	if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
		h.log.Warn("invalid auth token")
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
		conn.Close()
		return
	}

	h.setAuthenticated()
	h.log.Info("authenticated")

	if err := conn.Reply(ctx, req.ID, struct{}{}); err != nil {
		h.log.Error("failed to send auth response", "error", err)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return errMissingParams
	}
	return json.Unmarshal(*req.Params, v)
}

func (h *rpcMethodHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, result any) {
	if err := conn.Reply(ctx, id, result); err != nil {
		h.log.Error("failed to send response", "error", err)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

// replyFailure maps validation and lookup failures to CodeInvalidParams and
// everything else to CodeInternalError.
func (h *rpcMethodHandler) replyFailure(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, err error) {
	if isClientError(err) {
		h.replyError(ctx, conn, id, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}
	h.log.Error("request failed", "error", err)
	h.replyError(ctx, conn, id, jsonrpc2.CodeInternalError, "internal error")
}

func isClientError(err error) bool {
	for _, target := range []error{
		session.ErrSessionNotFound,
		session.ErrEmptyTitle,
		session.ErrEmptyMessage,
		session.ErrExchangePending,
		assistant.ErrEmptyQuery,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// webSocketStream adapts coder/websocket to jsonrpc2.ObjectStream.
type webSocketStream struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects writes
}

func newWebSocketStream(conn *websocket.Conn) *webSocketStream {
	return &webSocketStream{conn: conn}
}

func (s *webSocketStream) ReadObject(v interface{}) error {
	_, data, err := s.conn.Read(context.Background())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *webSocketStream) WriteObject(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, data)
}

func (s *webSocketStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

var _ jsonrpc2.ObjectStream = (*webSocketStream)(nil)
