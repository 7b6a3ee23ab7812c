package api

import (
	"context"
	"net/http"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/voice"
)

type Answerer interface {
	Answer(ctx context.Context, q assistant.Query) (assistant.Result, error)
}

type VoiceAssistant interface {
	Handle(ctx context.Context, command string) voice.Result
}

// AssistantHandler serves one-off queries and voice commands.
type AssistantHandler struct {
	answerer Answerer
	voice    VoiceAssistant
}

func NewAssistantHandler(answerer Answerer, v VoiceAssistant) *AssistantHandler {
	return &AssistantHandler{answerer: answerer, voice: v}
}

type commandRequest struct {
	Command string `json:"command"`
}

// HandleAsk handles POST /api/assistant/ask
func (h *AssistantHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var q assistant.Query
	if !decodeBody(w, r, &q) {
		return
	}

	res, err := h.answerer.Answer(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCommand handles POST /api/assistant/command. Failures are reported
// inside the result, so the status is always 200 once the body parses.
func (h *AssistantHandler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var body commandRequest
	if !decodeBody(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, h.voice.Handle(r.Context(), body.Command))
}

func (h *AssistantHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/assistant/ask", h.HandleAsk)
	mux.HandleFunc("POST /api/assistant/command", h.HandleCommand)
}
