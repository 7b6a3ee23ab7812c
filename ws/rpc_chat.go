package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/omniassist/server/chat"
	"github.com/omniassist/server/rpc"
	"github.com/omniassist/server/session"
)

func (h *rpcMethodHandler) handleAttach(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if _, ok := h.Sessions.Get(params.SessionID); !ok {
		h.replyFailure(ctx, conn, req.ID, session.ErrSessionNotFound)
		return
	}

	h.state.attach(params.SessionID, conn)

	pending := h.Chat.Pending(params.SessionID) != nil
	h.reply(ctx, conn, req.ID, rpc.AttachResult{Pending: pending})
	h.log.Info("attached to session", "sessionId", params.SessionID, "pending", pending)
}

// handleMessage replies once the placeholder exists; the answer arrives as a
// chat.resolved or chat.error notification.
func (h *rpcMethodHandler) handleMessage(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.MessageParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	ex, err := h.Chat.Send(ctx, chat.Request{
		SessionID:    params.SessionID,
		Content:      params.Content,
		ImageDataURI: params.ImageDataURI,
		File:         params.File,
	})
	if err != nil {
		h.replyFailure(ctx, conn, req.ID, err)
		return
	}

	h.reply(ctx, conn, req.ID, rpc.MessageResult{
		UserMessageID: ex.UserMessageID,
		MessageID:     ex.MessageID,
	})
}
