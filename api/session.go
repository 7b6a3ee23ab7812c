// Package api serves the REST endpoints.
package api

import (
	"net/http"

	"github.com/omniassist/server/chat"
	"github.com/omniassist/server/session"
)

// SessionHandler handles session-related REST endpoints.
type SessionHandler struct {
	sessions *session.Manager
	chat     *chat.Manager
}

func NewSessionHandler(sessions *session.Manager, chatMgr *chat.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions, chat: chatMgr}
}

type sessionListResponse struct {
	Sessions []session.Session `json:"sessions"`
	ActiveID string            `json:"activeId"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type messageRequest struct {
	Content      string                  `json:"content"`
	ImageDataURI string                  `json:"imageDataUri,omitempty"`
	File         *session.FileAttachment `json:"file,omitempty"`
}

// HandleList handles GET /api/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionListResponse{
		Sessions: h.sessions.List(),
		ActiveID: h.sessions.ActiveID(),
	})
}

// HandleCreate handles POST /api/sessions
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id := h.sessions.CreateSession(r.Context())
	s, _ := h.sessions.Get(id)
	writeJSON(w, http.StatusCreated, s)
}

// HandleGet handles GET /api/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, session.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleRename handles PATCH /api/sessions/{id}
func (h *SessionHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var body renameRequest
	if !decodeBody(w, r, &body) {
		return
	}

	id := r.PathValue("id")
	if err := h.sessions.RenameSession(r.Context(), id, body.Title); err != nil {
		writeError(w, err)
		return
	}
	s, _ := h.sessions.Get(id)
	writeJSON(w, http.StatusOK, s)
}

// HandleDelete handles DELETE /api/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	activeID, err := h.sessions.DeleteSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeId": activeID})
}

// HandleTogglePin handles POST /api/sessions/{id}/pin
func (h *SessionHandler) HandleTogglePin(w http.ResponseWriter, r *http.Request) {
	pinned, err := h.sessions.TogglePin(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isPinned": pinned})
}

// HandleSelect handles POST /api/sessions/{id}/select
func (h *SessionHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.sessions.SelectSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"activeId": id})
}

// HandleMessage handles POST /api/sessions/{id}/messages. It waits for the
// answer; a client that gives up early does not cancel the exchange.
func (h *SessionHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if !decodeBody(w, r, &body) {
		return
	}

	ex, err := h.chat.Send(r.Context(), chat.Request{
		SessionID:    r.PathValue("id"),
		Content:      body.Content,
		ImageDataURI: body.ImageDataURI,
		File:         body.File,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := ex.Wait(r.Context())
	if err != nil && msg.ID == "" {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	// Failed exchanges still resolve to an error message.
	writeJSON(w, http.StatusOK, msg)
}

// Register registers session handlers to the given mux.
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.HandleList)
	mux.HandleFunc("POST /api/sessions", h.HandleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGet)
	mux.HandleFunc("PATCH /api/sessions/{id}", h.HandleRename)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("POST /api/sessions/{id}/pin", h.HandleTogglePin)
	mux.HandleFunc("POST /api/sessions/{id}/select", h.HandleSelect)
	mux.HandleFunc("POST /api/sessions/{id}/messages", h.HandleMessage)
}
