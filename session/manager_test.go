package session

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/omniassist/server/codeblock"
	"github.com/omniassist/server/kv"
)

var ctx = context.Background()

type recordingListener struct {
	events []SessionChangeEvent
}

func (r *recordingListener) OnSessionChange(e SessionChangeEvent) {
	r.events = append(r.events, e)
}

func newManager(t *testing.T) (*Manager, kv.Store) {
	t.Helper()
	store := kv.NewMemoryStore()
	return NewManager(ctx, store, DefaultConfig()), store
}

func assertActiveValid(t *testing.T, m *Manager) {
	t.Helper()
	active := m.ActiveID()
	if active == "" {
		t.Fatal("active id is empty")
	}
	if _, ok := m.Get(active); !ok {
		t.Fatalf("active id %q is not in the session list", active)
	}
}

// exchange runs one full successful exchange and returns the resolution.
func exchange(t *testing.T, m *Manager, id, user, ai string) Resolution {
	t.Helper()
	if _, err := m.AppendUserMessage(ctx, id, user, Attachments{}); err != nil {
		t.Fatalf("AppendUserMessage failed: %v", err)
	}
	msgID, err := m.AppendAiPlaceholder(ctx, id)
	if err != nil {
		t.Fatalf("AppendAiPlaceholder failed: %v", err)
	}
	res, err := m.ResolveAiMessage(ctx, id, msgID, ai, nil)
	if err != nil {
		t.Fatalf("ResolveAiMessage failed: %v", err)
	}
	return res
}

func TestNewManager_EmptyStoreCreatesSession(t *testing.T) {
	m, _ := newManager(t)

	sessions := m.List()
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].Title != "New Chat" {
		t.Errorf("got title %q, want %q", sessions[0].Title, "New Chat")
	}
	if len(sessions[0].Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(sessions[0].Messages))
	}
	if m.ActiveID() != sessions[0].ID {
		t.Error("expected the new session to be active")
	}
}

func TestNewManager_IncompatibleStoredValue(t *testing.T) {
	store := kv.NewMemoryStore()
	store.Set(ctx, "chatSessions", []byte(`{"sessions":"nope"}`))

	m := NewManager(ctx, store, DefaultConfig())
	if got := len(m.List()); got != 1 {
		t.Errorf("got %d sessions, want 1", got)
	}
	assertActiveValid(t, m)
}

func TestNewManager_RoundTrip(t *testing.T) {
	m1, store := newManager(t)
	id := m1.ActiveID()
	exchange(t, m1, id, "hello", "hi there")
	second := m1.CreateSession(ctx)

	m2 := NewManager(ctx, store, DefaultConfig())
	sessions := m2.List()
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if m2.ActiveID() != sessions[0].ID {
		t.Error("expected the first session to be active after load")
	}
	if sessions[0].ID != second {
		t.Errorf("expected newest session first, got %s", sessions[0].ID)
	}

	got, ok := m2.Get(id)
	if !ok {
		t.Fatal("session lost across reload")
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "hi there" {
		t.Errorf("messages not restored: %+v", got.Messages)
	}
	if got.Title != "hello" {
		t.Errorf("got title %q, want %q", got.Title, "hello")
	}
}

func TestNewManager_StalePlaceholderClosed(t *testing.T) {
	m1, store := newManager(t)
	id := m1.ActiveID()
	m1.AppendUserMessage(ctx, id, "q", Attachments{})
	msgID, _ := m1.AppendAiPlaceholder(ctx, id)

	m2 := NewManager(ctx, store, DefaultConfig())
	s, _ := m2.Get(id)
	last := s.Messages[len(s.Messages)-1]
	if last.ID != msgID || last.IsLoading || !last.IsError {
		t.Errorf("expected interrupted placeholder to become an error, got %+v", last)
	}

	// The session accepts new messages again.
	if _, err := m2.AppendUserMessage(ctx, id, "again", Attachments{}); err != nil {
		t.Errorf("AppendUserMessage after reload failed: %v", err)
	}
}

func TestNewManager_DuplicateIDsDropped(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Now()
	kv.Set(ctx, store, "chatSessions", []Session{
		{ID: "a", Title: "first", CreatedAt: now, UpdatedAt: now},
		{ID: "a", Title: "dup", CreatedAt: now, UpdatedAt: now},
		{ID: "", Title: "no id", CreatedAt: now, UpdatedAt: now},
	})

	m := NewManager(ctx, store, DefaultConfig())
	sessions := m.List()
	if len(sessions) != 1 || sessions[0].Title != "first" {
		t.Errorf("unexpected sessions: %+v", sessions)
	}
}

func TestCreateSession_PrependsAndActivates(t *testing.T) {
	m, _ := newManager(t)
	first := m.ActiveID()

	id := m.CreateSession(ctx)
	if id == first {
		t.Fatal("expected a new id")
	}
	if m.ActiveID() != id {
		t.Error("expected the created session to be active")
	}
	if m.List()[0].ID != id {
		t.Error("expected the created session first")
	}
}

func TestSelectSession(t *testing.T) {
	m, _ := newManager(t)
	first := m.ActiveID()
	m.CreateSession(ctx)

	if err := m.SelectSession(ctx, first); err != nil {
		t.Fatalf("SelectSession failed: %v", err)
	}
	if m.ActiveID() != first {
		t.Error("expected selected session to be active")
	}

	if err := m.SelectSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
	if m.ActiveID() != first {
		t.Error("unknown id must not change the active session")
	}
}

func TestDeleteSession_ActivePicksMostRecentlyUpdated(t *testing.T) {
	m, _ := newManager(t)
	a := m.ActiveID()
	b := m.CreateSession(ctx)
	c := m.CreateSession(ctx)

	// a becomes the most recently updated.
	exchange(t, m, a, "touch", "ok")
	m.SelectSession(ctx, c)

	active, err := m.DeleteSession(ctx, c)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if active != a {
		t.Errorf("got active %s, want %s (most recently updated)", active, a)
	}
	if _, ok := m.Get(c); ok {
		t.Error("deleted session still listed")
	}
	_ = b
}

func TestDeleteSession_LastCreatesReplacement(t *testing.T) {
	m, _ := newManager(t)
	only := m.ActiveID()

	active, err := m.DeleteSession(ctx, only)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if active == only || active == "" {
		t.Fatalf("expected a replacement session, got %q", active)
	}
	if len(m.List()) != 1 {
		t.Errorf("got %d sessions, want 1", len(m.List()))
	}
	assertActiveValid(t, m)
}

func TestDeleteSession_InactiveKeepsActive(t *testing.T) {
	m, _ := newManager(t)
	a := m.ActiveID()
	b := m.CreateSession(ctx)

	active, _ := m.DeleteSession(ctx, a)
	if active != b {
		t.Errorf("got active %s, want %s", active, b)
	}
}

func TestDeleteSession_NonExistent(t *testing.T) {
	m, _ := newManager(t)
	before := m.ActiveID()

	active, err := m.DeleteSession(ctx, "non-existent")
	if err != nil {
		t.Errorf("Delete non-existent should not error, got %v", err)
	}
	if active != before || len(m.List()) != 1 {
		t.Error("state changed on unknown delete")
	}
}

func TestActiveAlwaysValid_RandomCreateDelete(t *testing.T) {
	m, _ := newManager(t)
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		sessions := m.List()
		if r.Intn(2) == 0 {
			m.CreateSession(ctx)
		} else {
			victim := sessions[r.Intn(len(sessions))].ID
			if _, err := m.DeleteSession(ctx, victim); err != nil {
				t.Fatalf("DeleteSession failed: %v", err)
			}
		}
		assertActiveValid(t, m)
	}
}

func TestTogglePin_SortsPinnedFirst(t *testing.T) {
	m, _ := newManager(t)
	old := m.ActiveID()
	mid := m.CreateSession(ctx)
	m.CreateSession(ctx)

	pinned, err := m.TogglePin(ctx, old)
	if err != nil || !pinned {
		t.Fatalf("TogglePin = %v, %v", pinned, err)
	}

	sessions := m.List()
	if sessions[0].ID != old || !sessions[0].IsPinned {
		t.Errorf("expected pinned session first, got %+v", sessions[0])
	}
	for i := 2; i < len(sessions); i++ {
		if sessions[i-1].UpdatedAt.Before(sessions[i].UpdatedAt) && sessions[i-1].IsPinned == sessions[i].IsPinned {
			t.Error("unpinned group not sorted by descending updatedAt")
		}
	}

	// Touching an unpinned session never lifts it above a pinned one.
	exchange(t, m, mid, "q", "a")
	if m.List()[0].ID != old {
		t.Error("pinned session lost first place")
	}

	pinned, _ = m.TogglePin(ctx, old)
	if pinned {
		t.Error("expected unpin")
	}
	if _, err := m.TogglePin(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestTogglePin_UpdatesTimestamp(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	before, _ := m.Get(id)

	m.TogglePin(ctx, id)
	after, _ := m.Get(id)
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Error("expected updatedAt to advance")
	}
}

func TestRenameSession(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	if err := m.RenameSession(ctx, id, "  Trip planning  "); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
	s, _ := m.Get(id)
	if s.Title != "Trip planning" {
		t.Errorf("got %q, want %q", s.Title, "Trip planning")
	}

	for _, bad := range []string{"", "   "} {
		if err := m.RenameSession(ctx, id, bad); !errors.Is(err, ErrEmptyTitle) {
			t.Errorf("RenameSession(%q): got %v, want ErrEmptyTitle", bad, err)
		}
		s, _ := m.Get(id)
		if s.Title != "Trip planning" {
			t.Errorf("title changed on invalid rename: %q", s.Title)
		}
	}

	if err := m.RenameSession(ctx, "missing", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestAppendUserMessage_InterimTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		att     Attachments
		want    string
	}{
		{"short text", "Capital of France?", Attachments{}, "Capital of France?"},
		{"long text", strings.Repeat("b", 80), Attachments{}, strings.Repeat("b", 50) + "..."},
		{"image only", "", Attachments{ImageDataURI: "data:image/png;base64,AA=="}, "Image query"},
		{"file only", "", Attachments{File: &FileAttachment{Name: "notes.txt", Type: "text/plain"}}, "File: notes.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newManager(t)
			id := m.ActiveID()

			if _, err := m.AppendUserMessage(ctx, id, tt.content, tt.att); err != nil {
				t.Fatalf("AppendUserMessage failed: %v", err)
			}
			s, _ := m.Get(id)
			if s.Title != tt.want {
				t.Errorf("got title %q, want %q", s.Title, tt.want)
			}
			if s.TitleSource != TitleInterim {
				t.Errorf("got source %q, want interim", s.TitleSource)
			}
		})
	}
}

func TestAppendUserMessage_RenamedTitleKept(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	m.RenameSession(ctx, id, "Mine")

	m.AppendUserMessage(ctx, id, "hello", Attachments{})
	s, _ := m.Get(id)
	if s.Title != "Mine" {
		t.Errorf("got %q, want %q", s.Title, "Mine")
	}
}

func TestAppendUserMessage_Validation(t *testing.T) {
	m, _ := newManager(t)

	if _, err := m.AppendUserMessage(ctx, m.ActiveID(), "  ", Attachments{}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("got %v, want ErrEmptyMessage", err)
	}
	if _, err := m.AppendUserMessage(ctx, "missing", "hi", Attachments{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("got %v, want ErrSessionNotFound", err)
	}
}

func TestPendingExchange_NoDuplicatePlaceholder(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	m.AppendUserMessage(ctx, id, "first", Attachments{})
	msgID, _ := m.AppendAiPlaceholder(ctx, id)

	if _, err := m.AppendUserMessage(ctx, id, "second", Attachments{}); !errors.Is(err, ErrExchangePending) {
		t.Errorf("AppendUserMessage while pending: got %v, want ErrExchangePending", err)
	}
	if _, err := m.AppendAiPlaceholder(ctx, id); !errors.Is(err, ErrExchangePending) {
		t.Errorf("AppendAiPlaceholder while pending: got %v, want ErrExchangePending", err)
	}

	if _, err := m.ResolveAiMessage(ctx, id, msgID, "answer", nil); err != nil {
		t.Fatalf("ResolveAiMessage failed: %v", err)
	}

	s, _ := m.Get(id)
	if len(s.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(s.Messages))
	}
	if s.Messages[1].ID != msgID || s.Messages[1].IsLoading {
		t.Errorf("placeholder not replaced in place: %+v", s.Messages[1])
	}
}

func TestBeginExchange(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	l := &recordingListener{}
	m.SetOnChangeListener(l)

	userMsg, placeholderID, err := m.BeginExchange(ctx, id, "hello there", Attachments{})
	if err != nil {
		t.Fatalf("BeginExchange failed: %v", err)
	}

	s, _ := m.Get(id)
	if len(s.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(s.Messages))
	}
	if s.Messages[0].ID != userMsg.ID || s.Messages[0].Sender != SenderUser {
		t.Errorf("unexpected user message: %+v", s.Messages[0])
	}
	if s.Messages[1].ID != placeholderID || !s.Messages[1].IsLoading {
		t.Errorf("unexpected placeholder: %+v", s.Messages[1])
	}
	if s.Title != "hello there" || s.TitleSource != TitleInterim {
		t.Errorf("got title %q (%s), want interim %q", s.Title, s.TitleSource, "hello there")
	}
	if len(l.events) != 1 {
		t.Errorf("got %d change events, want 1", len(l.events))
	}
}

func TestBeginExchange_FailureAppendsNothing(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	if _, _, err := m.BeginExchange(ctx, "missing", "hi", Attachments{}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: got %v, want ErrSessionNotFound", err)
	}
	if _, _, err := m.BeginExchange(ctx, id, "  ", Attachments{}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty message: got %v, want ErrEmptyMessage", err)
	}
	if _, _, err := m.BeginExchange(ctx, id, "first", Attachments{}); err != nil {
		t.Fatalf("BeginExchange failed: %v", err)
	}
	if _, _, err := m.BeginExchange(ctx, id, "second", Attachments{}); !errors.Is(err, ErrExchangePending) {
		t.Errorf("pending: got %v, want ErrExchangePending", err)
	}

	s, _ := m.Get(id)
	if len(s.Messages) != 2 {
		t.Errorf("got %d messages, want only the first exchange's 2", len(s.Messages))
	}
}

func TestResolveAiMessage_CodeBlocksAndTimestamps(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	m.AppendUserMessage(ctx, id, "code please", Attachments{})
	msgID, _ := m.AppendAiPlaceholder(ctx, id)
	before, _ := m.Get(id)

	text := "```go\nfmt.Println(1)\n```"
	if _, err := m.ResolveAiMessage(ctx, id, msgID, text, codeblock.Extract(text)); err != nil {
		t.Fatalf("ResolveAiMessage failed: %v", err)
	}

	s, _ := m.Get(id)
	got := s.Messages[1]
	if len(got.ExtractedCodeBlocks) != 1 || got.ExtractedCodeBlocks[0].Language != "go" {
		t.Errorf("code blocks not stored: %+v", got.ExtractedCodeBlocks)
	}
	if !s.UpdatedAt.After(before.UpdatedAt) {
		t.Error("expected updatedAt to advance")
	}
	if s.UpdatedAt.Before(s.CreatedAt) {
		t.Error("updatedAt before createdAt")
	}

	if _, err := m.ResolveAiMessage(ctx, id, msgID, "again", nil); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("resolving twice: got %v, want ErrMessageNotFound", err)
	}
}

func TestResolveAiMessage_NeedsTitleOnce(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	res := exchange(t, m, id, "What is the capital of France?", "Paris.")
	if !res.NeedsTitle {
		t.Fatal("expected NeedsTitle on first exchange")
	}
	if res.UserText != "What is the capital of France?" || res.AIText != "Paris." {
		t.Errorf("unexpected resolution: %+v", res)
	}

	if res := exchange(t, m, id, "and Spain?", "Madrid."); res.NeedsTitle {
		t.Error("NeedsTitle must be reported once")
	}
}

func TestResolveAiMessage_NoTitleAfterRename(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	m.RenameSession(ctx, id, "Custom")

	if res := exchange(t, m, id, "hi", "hello"); res.NeedsTitle {
		t.Error("renamed session must not request a title")
	}
}

func TestResolveAiMessage_TitleAfterErroredFirstExchange(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	m.AppendUserMessage(ctx, id, "first", Attachments{})
	msgID, _ := m.AppendAiPlaceholder(ctx, id)
	if err := m.ResolveAiError(ctx, id, msgID, "Error: boom"); err != nil {
		t.Fatalf("ResolveAiError failed: %v", err)
	}

	if res := exchange(t, m, id, "second", "ok"); !res.NeedsTitle {
		t.Error("expected NeedsTitle on the first completed exchange")
	}
}

func TestResolveAiError(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	m.AppendUserMessage(ctx, id, "q", Attachments{})
	msgID, _ := m.AppendAiPlaceholder(ctx, id)

	if err := m.ResolveAiError(ctx, id, msgID, "Error: quota exceeded"); err != nil {
		t.Fatalf("ResolveAiError failed: %v", err)
	}

	s, _ := m.Get(id)
	got := s.Messages[1]
	if got.ID != msgID || got.IsLoading || !got.IsError || got.Content != "Error: quota exceeded" {
		t.Errorf("unexpected error message: %+v", got)
	}
	if err := m.ResolveAiError(ctx, id, "nope", "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("got %v, want ErrMessageNotFound", err)
	}
}

func TestApplyGeneratedTitle(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	changed, err := m.ApplyGeneratedTitle(ctx, id, "French Capital")
	if err != nil || !changed {
		t.Fatalf("ApplyGeneratedTitle = %v, %v", changed, err)
	}
	s, _ := m.Get(id)
	if s.Title != "French Capital" || s.TitleSource != TitleGenerated {
		t.Errorf("unexpected session: %q %q", s.Title, s.TitleSource)
	}

	m.RenameSession(ctx, id, "Mine")
	changed, _ = m.ApplyGeneratedTitle(ctx, id, "Late title")
	if changed {
		t.Error("generated title must not override a user rename")
	}
}

func TestHistory(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()

	exchange(t, m, id, "hello", "hi")
	m.AppendUserMessage(ctx, id, "", Attachments{ImageDataURI: "data:image/png;base64,AA=="})
	msgID, _ := m.AppendAiPlaceholder(ctx, id)
	m.ResolveAiError(ctx, id, msgID, "Error: x")
	m.AppendUserMessage(ctx, id, "", Attachments{File: &FileAttachment{Name: "a.pdf", Type: "application/pdf"}})
	m.AppendAiPlaceholder(ctx, id)

	h, err := m.History(id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	want := []string{"hello", "hi", "[user sent an image]", "[user sent a file: a.pdf]"}
	if len(h) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(h), len(want), h)
	}
	for i, w := range want {
		if h[i].Content != w {
			t.Errorf("entry %d: got %q, want %q", i, h[i].Content, w)
		}
	}
	if h[1].Sender != "ai" {
		t.Errorf("got sender %q, want ai", h[1].Sender)
	}
}

func TestListener(t *testing.T) {
	m, _ := newManager(t)
	l := &recordingListener{}
	m.SetOnChangeListener(l)

	id := m.CreateSession(ctx)
	m.RenameSession(ctx, id, "x")
	m.DeleteSession(ctx, id)

	if len(l.events) < 3 {
		t.Fatalf("got %d events, want at least 3", len(l.events))
	}
	if l.events[0].Op != OperationCreate || l.events[0].Session.ID != id {
		t.Errorf("unexpected create event: %+v", l.events[0])
	}
	if l.events[1].Op != OperationUpdate || l.events[1].Session.Title != "x" {
		t.Errorf("unexpected update event: %+v", l.events[1])
	}
	if l.events[2].Op != OperationDelete || l.events[2].Session.ID != id {
		t.Errorf("unexpected delete event: %+v", l.events[2])
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	m, _ := newManager(t)
	id := m.ActiveID()
	exchange(t, m, id, "hello", "hi")

	list := m.List()
	list[0].Messages[0].Content = "mutated"
	list[0].Title = "mutated"

	s, _ := m.Get(id)
	if s.Messages[0].Content != "hello" || s.Title == "mutated" {
		t.Error("List leaked internal state")
	}
}

func TestSortPinnedDisabled_KeepsInsertionOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SortPinned = false
	m := NewManager(ctx, kv.NewMemoryStore(), cfg)

	a := m.ActiveID()
	b := m.CreateSession(ctx)
	exchange(t, m, a, "touch", "ok")

	if got := m.List()[0].ID; got != b {
		t.Errorf("got first %s, want %s (insertion order)", got, b)
	}
}
