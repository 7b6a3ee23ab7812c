package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/omniassist/server/rpc"
	"github.com/omniassist/server/session"
)

func (h *rpcMethodHandler) handleSessionList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.reply(ctx, conn, req.ID, rpc.SessionListResult{
		Sessions: h.Sessions.List(),
		ActiveID: h.Sessions.ActiveID(),
	})
}

func (h *rpcMethodHandler) handleSessionGet(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	s, ok := h.Sessions.Get(params.SessionID)
	if !ok {
		h.replyFailure(ctx, conn, req.ID, session.ErrSessionNotFound)
		return
	}
	h.reply(ctx, conn, req.ID, s)
}

func (h *rpcMethodHandler) handleSessionCreate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id := h.Sessions.CreateSession(ctx)
	s, _ := h.Sessions.Get(id)

	h.log.Info("session created", "sessionId", id)
	h.reply(ctx, conn, req.ID, rpc.SessionCreateResult{Session: s})
}

func (h *rpcMethodHandler) handleSessionSelect(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if err := h.Sessions.SelectSession(ctx, params.SessionID); err != nil {
		h.replyFailure(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req.ID, rpc.ActiveResult{ActiveID: params.SessionID})
}

func (h *rpcMethodHandler) handleSessionDelete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	activeID, err := h.Sessions.DeleteSession(ctx, params.SessionID)
	if err != nil {
		h.replyFailure(ctx, conn, req.ID, err)
		return
	}

	h.log.Info("session deleted", "sessionId", params.SessionID, "activeId", activeID)
	h.reply(ctx, conn, req.ID, rpc.ActiveResult{ActiveID: activeID})
}

func (h *rpcMethodHandler) handleSessionTogglePin(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	pinned, err := h.Sessions.TogglePin(ctx, params.SessionID)
	if err != nil {
		h.replyFailure(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req.ID, rpc.TogglePinResult{IsPinned: pinned})
}

func (h *rpcMethodHandler) handleSessionRename(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionRenameParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if err := h.Sessions.RenameSession(ctx, params.SessionID, params.Title); err != nil {
		h.replyFailure(ctx, conn, req.ID, err)
		return
	}

	h.log.Info("session renamed", "sessionId", params.SessionID)
	h.reply(ctx, conn, req.ID, struct{}{})
}

func (h *rpcMethodHandler) handleSessionListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, sessions := h.SessionList.Subscribe(conn, h.state.connID)
	h.reply(ctx, conn, req.ID, rpc.SessionListSubscribeResult{
		ID:       id,
		Sessions: sessions,
	})
}

func (h *rpcMethodHandler) handleSessionListUnsubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionListUnsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.SessionList.Unsubscribe(params.ID)
	h.reply(ctx, conn, req.ID, struct{}{})
}
