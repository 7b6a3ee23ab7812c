package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/chat"
	"github.com/omniassist/server/kv"
	"github.com/omniassist/server/session"
)

type stubAnswerer struct {
	answer string
	err    error
}

func (s stubAnswerer) Answer(ctx context.Context, q assistant.Query) (assistant.Result, error) {
	if s.err != nil {
		return assistant.Result{}, s.err
	}
	if strings.TrimSpace(q.Question) == "" && q.ImageDataURI == "" && q.File == nil {
		return assistant.Result{}, assistant.ErrEmptyQuery
	}
	return assistant.Result{Answer: s.answer, OriginalQuestion: q.Question}, nil
}

type stubTitles struct{}

func (stubTitles) Generate(ctx context.Context, userText, aiText string) string { return "Title" }

func newSessionMux(t *testing.T, a stubAnswerer) (*http.ServeMux, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(context.Background(), kv.NewMemoryStore(), session.DefaultConfig())
	chatMgr := chat.NewManager(sessions, a, stubTitles{})
	t.Cleanup(func() { chatMgr.Shutdown(context.Background()) })

	mux := http.NewServeMux()
	NewSessionHandler(sessions, chatMgr).Register(mux)
	return mux, sessions
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSessionHandler_List(t *testing.T) {
	mux, sessions := newSessionMux(t, stubAnswerer{})
	sessions.CreateSession(context.Background())

	rec := do(mux, http.MethodGet, "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp sessionListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(resp.Sessions))
	}
	if resp.ActiveID != sessions.ActiveID() {
		t.Errorf("got active %q, want %q", resp.ActiveID, sessions.ActiveID())
	}
}

func TestSessionHandler_Create(t *testing.T) {
	mux, _ := newSessionMux(t, stubAnswerer{})

	rec := do(mux, http.MethodPost, "/api/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}

	var sess session.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if sess.ID == "" {
		t.Error("expected non-empty session ID")
	}
	if sess.Title != "New Chat" {
		t.Errorf("expected title 'New Chat', got %q", sess.Title)
	}
}

func TestSessionHandler_GetAndRename(t *testing.T) {
	mux, sessions := newSessionMux(t, stubAnswerer{})
	id := sessions.ActiveID()

	rec := do(mux, http.MethodPatch, "/api/sessions/"+id, `{"title":"Trip"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(mux, http.MethodGet, "/api/sessions/"+id, "")
	var sess session.Session
	json.NewDecoder(rec.Body).Decode(&sess)
	if sess.Title != "Trip" {
		t.Errorf("got title %q, want %q", sess.Title, "Trip")
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty title", http.MethodPatch, "/api/sessions/" + id, `{"title":"  "}`, http.StatusBadRequest},
		{"bad body", http.MethodPatch, "/api/sessions/" + id, `{`, http.StatusBadRequest},
		{"rename unknown", http.MethodPatch, "/api/sessions/missing", `{"title":"x"}`, http.StatusNotFound},
		{"get unknown", http.MethodGet, "/api/sessions/missing", "", http.StatusNotFound},
		{"pin unknown", http.MethodPost, "/api/sessions/missing/pin", "", http.StatusNotFound},
		{"select unknown", http.MethodPost, "/api/sessions/missing/select", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("got status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSessionHandler_PinSelectDelete(t *testing.T) {
	mux, sessions := newSessionMux(t, stubAnswerer{})
	first := sessions.ActiveID()
	second := sessions.CreateSession(context.Background())

	rec := do(mux, http.MethodPost, "/api/sessions/"+first+"/pin", "")
	var pin map[string]bool
	json.NewDecoder(rec.Body).Decode(&pin)
	if !pin["isPinned"] {
		t.Error("expected session to be pinned")
	}

	rec = do(mux, http.MethodPost, "/api/sessions/"+first+"/select", "")
	if rec.Code != http.StatusOK || sessions.ActiveID() != first {
		t.Errorf("select failed: %d", rec.Code)
	}

	rec = do(mux, http.MethodDelete, "/api/sessions/"+first, "")
	var del map[string]string
	json.NewDecoder(rec.Body).Decode(&del)
	if del["activeId"] != second {
		t.Errorf("got active %q, want %q", del["activeId"], second)
	}

	// Deleting an unknown session is a no-op.
	rec = do(mux, http.MethodDelete, "/api/sessions/missing", "")
	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestSessionHandler_Message(t *testing.T) {
	mux, sessions := newSessionMux(t, stubAnswerer{answer: "```sh\nls\n```"})
	id := sessions.ActiveID()

	rec := do(mux, http.MethodPost, "/api/sessions/"+id+"/messages", `{"content":"list files"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body)
	}

	var msg session.Message
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if msg.Sender != session.SenderAI || msg.IsLoading {
		t.Errorf("unexpected message: %+v", msg)
	}
	if len(msg.ExtractedCodeBlocks) != 1 || msg.ExtractedCodeBlocks[0].Code != "ls" {
		t.Errorf("unexpected code blocks: %+v", msg.ExtractedCodeBlocks)
	}

	rec = do(mux, http.MethodPost, "/api/sessions/"+id+"/messages", `{"content":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message: got status %d, want 400", rec.Code)
	}

	rec = do(mux, http.MethodPost, "/api/sessions/missing/messages", `{"content":"hi"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: got status %d, want 404", rec.Code)
	}
}

func TestSessionHandler_MessageAssistantFailure(t *testing.T) {
	mux, sessions := newSessionMux(t, stubAnswerer{err: errors.New("boom")})

	rec := do(mux, http.MethodPost, "/api/sessions/"+sessions.ActiveID()+"/messages", `{"content":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var msg session.Message
	json.NewDecoder(rec.Body).Decode(&msg)
	if !msg.IsError || msg.Content != "Error: boom" {
		t.Errorf("unexpected message: %+v", msg)
	}
}
