// Package session owns the conversation list: creation, selection, deletion,
// pinning, renaming, and the message lifecycle of each exchange.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/codeblock"
	"github.com/omniassist/server/kv"
	"github.com/omniassist/server/title"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("pending message not found")
	ErrEmptyTitle      = errors.New("title must not be empty")
	ErrEmptyMessage    = errors.New("message must have content or an attachment")
	ErrExchangePending = errors.New("a response is still pending for this session")
)

// interruptedText replaces placeholders found in stored data; the exchange
// that owned them can no longer complete.
const interruptedText = "Error: the response was interrupted before it completed."

type Config struct {
	// StoreKey is the key holding the full session list.
	StoreKey     string
	DefaultTitle string
	// SortPinned keeps pinned sessions first, then by most recent update.
	// When false, new sessions go to the front and the order only changes
	// on pin toggles.
	SortPinned      bool
	InterimTitleMax int
}

func DefaultConfig() Config {
	return Config{
		StoreKey:        "chatSessions",
		DefaultTitle:    "New Chat",
		SortPinned:      true,
		InterimTitleMax: 50,
	}
}

// Manager is safe for concurrent use. Every mutation rewrites the whole list
// under Config.StoreKey; write failures are logged by kv and otherwise ignored.
type Manager struct {
	store kv.Store
	cfg   Config
	now   func() time.Time

	mu       sync.Mutex
	sessions []Session
	activeID string
	lastTick time.Time
	listener OnChangeListener
}

// NewManager loads the stored list once. An absent or incompatible value
// yields an empty list, in which case a session is created immediately.
func NewManager(ctx context.Context, store kv.Store, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.StoreKey == "" {
		cfg.StoreKey = def.StoreKey
	}
	if cfg.DefaultTitle == "" {
		cfg.DefaultTitle = def.DefaultTitle
	}
	if cfg.InterimTitleMax <= 0 {
		cfg.InterimTitleMax = def.InterimTitleMax
	}

	m := &Manager{store: store, cfg: cfg, now: time.Now}
	m.sessions = m.sanitize(kv.Get(ctx, store, cfg.StoreKey, []Session{}))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.SortPinned {
		m.sortLocked()
	}
	if len(m.sessions) == 0 {
		m.createLocked(ctx)
	} else {
		m.activeID = m.sessions[0].ID
	}
	return m
}

// sanitize drops sessions without a usable id and closes out placeholders
// left behind by a previous process.
func (m *Manager) sanitize(stored []Session) []Session {
	seen := make(map[string]bool, len(stored))
	out := make([]Session, 0, len(stored))

	for _, s := range stored {
		if s.ID == "" || seen[s.ID] {
			slog.Warn("dropping stored session with missing or duplicate id", "sessionId", s.ID)
			continue
		}
		seen[s.ID] = true

		if s.Messages == nil {
			s.Messages = []Message{}
		}
		for i := range s.Messages {
			if s.Messages[i].IsLoading {
				s.Messages[i].IsLoading = false
				s.Messages[i].IsError = true
				s.Messages[i].Content = interruptedText
			}
		}
		if s.TitleSource == "" {
			if s.Title == m.cfg.DefaultTitle {
				s.TitleSource = TitleDefault
			} else {
				s.TitleSource = TitleGenerated
			}
		}
		if s.UpdatedAt.Before(s.CreatedAt) {
			s.UpdatedAt = s.CreatedAt
		}
		out = append(out, s)
	}
	return out
}

func (m *Manager) SetOnChangeListener(listener OnChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}

func (m *Manager) notifyLocked(op Operation, s *Session) {
	if m.listener == nil {
		return
	}
	if op == OperationDelete {
		m.listener.OnSessionChange(SessionChangeEvent{Op: op, Session: Session{ID: s.ID}})
		return
	}
	m.listener.OnSessionChange(SessionChangeEvent{Op: op, Session: s.clone()})
}

// tick returns a timestamp strictly after the previous one so recency order
// is total even when the clock is coarse.
func (m *Manager) tick() time.Time {
	t := m.now()
	if !t.After(m.lastTick) {
		t = m.lastTick.Add(time.Nanosecond)
	}
	m.lastTick = t
	return t
}

func (m *Manager) persistLocked(ctx context.Context) {
	kv.Set(context.WithoutCancel(ctx), m.store, m.cfg.StoreKey, m.sessions)
}

func (m *Manager) sortLocked() {
	sort.SliceStable(m.sessions, func(i, j int) bool {
		a, b := m.sessions[i], m.sessions[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		return a.UpdatedAt.After(b.UpdatedAt)
	})
}

// commitLocked reorders if configured, persists and notifies.
func (m *Manager) commitLocked(ctx context.Context, op Operation, s *Session) {
	if m.cfg.SortPinned {
		m.sortLocked()
	}
	m.persistLocked(ctx)
	m.notifyLocked(op, s)
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// List returns copies of all sessions in display order.
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, len(m.sessions))
	for i := range m.sessions {
		out[i] = m.sessions[i].clone()
	}
	return out
}

func (m *Manager) Get(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return Session{}, false
	}
	return m.sessions[i].clone(), true
}

// ActiveID is always the id of a listed session.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

func (m *Manager) Active() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[m.indexLocked(m.activeID)].clone()
}

func (m *Manager) CreateSession(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx)
}

func (m *Manager) createLocked(ctx context.Context) string {
	now := m.tick()
	s := Session{
		ID:          newID(),
		Title:       m.cfg.DefaultTitle,
		Messages:    []Message{},
		CreatedAt:   now,
		UpdatedAt:   now,
		TitleSource: TitleDefault,
	}
	m.sessions = append([]Session{s}, m.sessions...)
	m.activeID = s.ID

	m.commitLocked(ctx, OperationCreate, &s)
	slog.Debug("session created", "sessionId", s.ID)
	return s.ID
}

// SelectSession marks id active. An unknown id leaves the active session unchanged.
func (m *Manager) SelectSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexLocked(id) < 0 {
		return ErrSessionNotFound
	}
	m.activeID = id
	return nil
}

// DeleteSession removes id and returns the active id afterwards. If the
// active session was removed, the most recently updated remaining session
// becomes active, or a new one is created. Deleting an unknown id is a no-op.
func (m *Manager) DeleteSession(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return m.activeID, nil
	}

	removed := m.sessions[i]
	m.sessions = append(m.sessions[:i:i], m.sessions[i+1:]...)
	m.persistLocked(ctx)
	m.notifyLocked(OperationDelete, &removed)
	slog.Debug("session deleted", "sessionId", id)

	if m.activeID != id {
		return m.activeID, nil
	}

	if len(m.sessions) == 0 {
		return m.createLocked(ctx), nil
	}

	latest := 0
	for j := range m.sessions {
		if m.sessions[j].UpdatedAt.After(m.sessions[latest].UpdatedAt) {
			latest = j
		}
	}
	m.activeID = m.sessions[latest].ID
	return m.activeID, nil
}

// TogglePin flips the pinned flag and returns the new value. The list is
// always re-sorted afterwards, pinned first.
func (m *Manager) TogglePin(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return false, ErrSessionNotFound
	}

	m.sessions[i].IsPinned = !m.sessions[i].IsPinned
	m.sessions[i].UpdatedAt = m.tick()
	s := m.sessions[i]

	m.sortLocked()
	m.persistLocked(ctx)
	m.notifyLocked(OperationUpdate, &s)
	return s.IsPinned, nil
}

// RenameSession stores the trimmed title. Blank titles are rejected.
func (m *Manager) RenameSession(ctx context.Context, id, newTitle string) error {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return ErrEmptyTitle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return ErrSessionNotFound
	}

	m.sessions[i].Title = newTitle
	m.sessions[i].TitleSource = TitleUser
	m.sessions[i].UpdatedAt = m.tick()
	s := m.sessions[i]

	m.commitLocked(ctx, OperationUpdate, &s)
	return nil
}

// AppendUserMessage adds a user message. The first message of a session that
// still has its default title also sets an interim title.
func (m *Manager) AppendUserMessage(ctx context.Context, id, content string, att Attachments) (Message, error) {
	if strings.TrimSpace(content) == "" && att.empty() {
		return Message{}, ErrEmptyMessage
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.idleLocked(id)
	if err != nil {
		return Message{}, err
	}
	msg := m.appendUserLocked(s, content, att)
	snapshot := *s

	m.commitLocked(ctx, OperationUpdate, &snapshot)
	return msg, nil
}

// AppendAiPlaceholder adds the transient loading message and returns its id.
func (m *Manager) AppendAiPlaceholder(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.idleLocked(id)
	if err != nil {
		return "", err
	}
	placeholderID := m.appendPlaceholderLocked(s)
	snapshot := *s

	m.persistLocked(ctx)
	m.notifyLocked(OperationUpdate, &snapshot)
	return placeholderID, nil
}

// BeginExchange appends a user message and its placeholder as one update.
// Either both are added or neither is.
func (m *Manager) BeginExchange(ctx context.Context, id, content string, att Attachments) (Message, string, error) {
	if strings.TrimSpace(content) == "" && att.empty() {
		return Message{}, "", ErrEmptyMessage
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.idleLocked(id)
	if err != nil {
		return Message{}, "", err
	}
	msg := m.appendUserLocked(s, content, att)
	placeholderID := m.appendPlaceholderLocked(s)
	snapshot := *s

	m.commitLocked(ctx, OperationUpdate, &snapshot)
	return msg, placeholderID, nil
}

// idleLocked returns the session id when it has no exchange in flight.
func (m *Manager) idleLocked(id string) (*Session, error) {
	i := m.indexLocked(id)
	if i < 0 {
		return nil, ErrSessionNotFound
	}
	s := &m.sessions[i]
	if s.pending() {
		return nil, ErrExchangePending
	}
	return s, nil
}

func (m *Manager) appendUserLocked(s *Session, content string, att Attachments) Message {
	now := m.tick()
	msg := Message{
		ID:        newID(),
		Sender:    SenderUser,
		Content:   content,
		Timestamp: now,
		Image:     att.ImageDataURI,
	}
	if att.File != nil {
		f := *att.File
		msg.File = &f
	}

	if len(s.Messages) == 0 && s.TitleSource.replaceable() {
		fileName := ""
		if att.File != nil {
			fileName = att.File.Name
		}
		if t := title.Interim(content, att.ImageDataURI != "", fileName, m.cfg.InterimTitleMax); t != "" {
			s.Title = t
			s.TitleSource = TitleInterim
		}
	}

	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = now
	return msg
}

func (m *Manager) appendPlaceholderLocked(s *Session) string {
	msg := Message{
		ID:        newID(),
		Sender:    SenderAI,
		Timestamp: m.tick(),
		IsLoading: true,
	}
	s.Messages = append(s.Messages, msg)
	return msg.ID
}

// ResolveAiMessage replaces the placeholder messageID in place.
func (m *Manager) ResolveAiMessage(ctx context.Context, id, messageID, content string, blocks []codeblock.Block) (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, j, err := m.placeholderLocked(id, messageID)
	if err != nil {
		return Resolution{}, err
	}

	now := m.tick()
	s.Messages[j] = Message{
		ID:                  messageID,
		Sender:              SenderAI,
		Content:             content,
		Timestamp:           now,
		ExtractedCodeBlocks: blocks,
	}
	s.UpdatedAt = now

	res := Resolution{AIText: content, UserText: userTextBefore(s.Messages, j)}
	if !s.TitleRequested && s.TitleSource.replaceable() && completedExchanges(s.Messages) == 1 {
		s.TitleRequested = true
		res.NeedsTitle = true
	}
	snapshot := *s

	m.commitLocked(ctx, OperationUpdate, &snapshot)
	return res, nil
}

// ResolveAiError replaces the placeholder with an error rendering.
func (m *Manager) ResolveAiError(ctx context.Context, id, messageID, errorText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, j, err := m.placeholderLocked(id, messageID)
	if err != nil {
		return err
	}

	now := m.tick()
	s.Messages[j] = Message{
		ID:        messageID,
		Sender:    SenderAI,
		Content:   errorText,
		Timestamp: now,
		IsError:   true,
	}
	s.UpdatedAt = now
	snapshot := *s

	m.commitLocked(ctx, OperationUpdate, &snapshot)
	return nil
}

// ApplyGeneratedTitle stores t unless the user renamed the session meanwhile.
// It reports whether the title changed.
func (m *Manager) ApplyGeneratedTitle(ctx context.Context, id, t string) (bool, error) {
	t = strings.TrimSpace(t)
	if t == "" {
		return false, ErrEmptyTitle
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return false, ErrSessionNotFound
	}
	s := &m.sessions[i]
	if !s.TitleSource.replaceable() {
		return false, nil
	}

	s.Title = t
	s.TitleSource = TitleGenerated
	snapshot := *s

	m.persistLocked(ctx)
	m.notifyLocked(OperationUpdate, &snapshot)
	return true, nil
}

// History returns the completed messages of id, oldest first, in the shape
// the assistant expects. Attachment-only messages get a bracketed placeholder
// and error renderings are left out.
func (m *Manager) History(id string) ([]assistant.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexLocked(id)
	if i < 0 {
		return nil, ErrSessionNotFound
	}

	var out []assistant.HistoryEntry
	for _, msg := range m.sessions[i].Messages {
		if msg.IsLoading || msg.IsError {
			continue
		}
		content := msg.Content
		if strings.TrimSpace(content) == "" {
			content = placeholderFor(msg)
		}
		if content == "" {
			continue
		}
		out = append(out, assistant.HistoryEntry{Sender: assistant.Sender(msg.Sender), Content: content})
	}
	return out, nil
}

func (m *Manager) placeholderLocked(id, messageID string) (*Session, int, error) {
	i := m.indexLocked(id)
	if i < 0 {
		return nil, 0, ErrSessionNotFound
	}
	s := &m.sessions[i]
	for j := range s.Messages {
		if s.Messages[j].ID == messageID && s.Messages[j].IsLoading {
			return s, j, nil
		}
	}
	return nil, 0, ErrMessageNotFound
}

func placeholderFor(msg Message) string {
	fileName := ""
	if msg.File != nil {
		fileName = msg.File.Name
	}
	return assistant.Placeholder(msg.Image != "", fileName)
}

// userTextBefore finds the user message that opened the exchange ending at j.
func userTextBefore(msgs []Message, j int) string {
	for k := j - 1; k >= 0; k-- {
		if msgs[k].Sender != SenderUser {
			continue
		}
		if strings.TrimSpace(msgs[k].Content) != "" {
			return msgs[k].Content
		}
		return placeholderFor(msgs[k])
	}
	return ""
}

func completedExchanges(msgs []Message) int {
	n := 0
	for _, msg := range msgs {
		if msg.Sender == SenderAI && !msg.IsLoading && !msg.IsError {
			n++
		}
	}
	return n
}
