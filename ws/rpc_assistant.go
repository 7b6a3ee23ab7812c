package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/rpc"
)

// handleAsk answers a one-off query outside any session.
func (h *rpcMethodHandler) handleAsk(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params assistant.Query
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	res, err := h.Assistant.Answer(ctx, params)
	if err != nil {
		h.replyFailure(ctx, conn, req.ID, err)
		return
	}
	h.reply(ctx, conn, req.ID, res)
}

func (h *rpcMethodHandler) handleCommand(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.CommandParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	h.reply(ctx, conn, req.ID, h.Voice.Handle(ctx, params.Command))
}
