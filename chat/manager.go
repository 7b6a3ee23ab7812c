// Package chat runs exchanges: a user message, its AI placeholder, the
// assistant call and the in-place resolution, with notifications to every
// connection attached to the session.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/codeblock"
	"github.com/omniassist/server/logger"
	"github.com/omniassist/server/metrics"
	"github.com/omniassist/server/rpc"
	"github.com/omniassist/server/session"
)

var (
	ErrEmptyMessage    = session.ErrEmptyMessage
	ErrExchangePending = session.ErrExchangePending
)

// Notification methods sent to attached connections.
const (
	MethodUserMessage  = "chat.user_message"
	MethodPlaceholder  = "chat.placeholder"
	MethodResolved     = "chat.resolved"
	MethodError        = "chat.error"
	MethodTitleChanged = "session.title_changed"
)

const contentLogMaxLen = 50

type Assistant interface {
	Answer(ctx context.Context, q assistant.Query) (assistant.Result, error)
}

type TitleGenerator interface {
	Generate(ctx context.Context, userText, aiText string) string
}

// Notifier is satisfied by *jsonrpc2.Conn.
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error
}

type Request struct {
	SessionID    string
	Content      string
	ImageDataURI string
	File         *session.FileAttachment
}

func (r Request) attachments() session.Attachments {
	return session.Attachments{ImageDataURI: r.ImageDataURI, File: r.File}
}

// Manager runs exchanges and tracks which connections follow which session.
// Exchanges and subscriptions have independent lifecycles.
type Manager struct {
	sessions  *session.Manager
	assistant Assistant
	titles    TitleGenerator

	// inflight holds session ids with an exchange running
	inflightMu sync.Mutex
	inflight   map[string]*Exchange
	wg         sync.WaitGroup

	subsMu sync.Mutex
	subs   map[string][]Notifier

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(sessions *session.Manager, a Assistant, titles TitleGenerator) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions:  sessions,
		assistant: a,
		titles:    titles,
		inflight:  make(map[string]*Exchange),
		subs:      make(map[string][]Notifier),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Exchange is one running or finished exchange. Do not cache references
// beyond Wait.
type Exchange struct {
	SessionID     string
	UserMessageID string
	MessageID     string

	done    chan struct{}
	message session.Message
	err     error
}

// Wait blocks until the exchange has finished, title generation included,
// and returns the resolved AI message. The error is the assistant failure
// that the message renders, or ctx's error.
func (e *Exchange) Wait(ctx context.Context) (session.Message, error) {
	select {
	case <-e.done:
		return e.message, e.err
	case <-ctx.Done():
		return session.Message{}, ctx.Err()
	}
}

// Send appends the user message and the placeholder, then answers in the
// background on the manager's context. The request ctx only bounds the
// synchronous part.
func (m *Manager) Send(ctx context.Context, req Request) (*Exchange, error) {
	if strings.TrimSpace(req.Content) == "" && req.ImageDataURI == "" && req.File == nil {
		return nil, ErrEmptyMessage
	}

	ex := &Exchange{SessionID: req.SessionID, done: make(chan struct{})}
	if !m.claim(ex) {
		return nil, ErrExchangePending
	}

	query, err := m.start(ctx, ex, req)
	if err != nil {
		m.release(req.SessionID)
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(ex.done)
		defer m.release(ex.SessionID)
		m.run(ex, req, query)
	}()
	return ex, nil
}

func (m *Manager) start(ctx context.Context, ex *Exchange, req Request) (assistant.Query, error) {
	// History covers completed messages before this exchange.
	history, err := m.sessions.History(req.SessionID)
	if err != nil {
		return assistant.Query{}, err
	}

	userMsg, placeholderID, err := m.sessions.BeginExchange(ctx, req.SessionID, req.Content, req.attachments())
	if err != nil {
		return assistant.Query{}, err
	}
	ex.UserMessageID = userMsg.ID
	ex.MessageID = placeholderID
	m.Notify(ctx, req.SessionID, MethodUserMessage, rpc.MessageNotifyParams{SessionID: req.SessionID, Message: userMsg})
	m.Notify(ctx, req.SessionID, MethodPlaceholder, rpc.MessageNotifyParams{
		SessionID: req.SessionID,
		Message:   session.Message{ID: placeholderID, Sender: session.SenderAI, IsLoading: true},
	})

	q := assistant.Query{
		Question:     req.Content,
		ImageDataURI: req.ImageDataURI,
		History:      history,
	}
	if req.File != nil {
		q.File = &assistant.File{Name: req.File.Name, Type: req.File.Type, DataURI: req.File.DataURI}
	}
	return q, nil
}

func (m *Manager) run(ex *Exchange, req Request, q assistant.Query) {
	ctx := m.ctx
	log := slog.With("sessionId", ex.SessionID, "messageId", ex.MessageID)
	log.Info("exchange started", "content", logger.Truncate(req.Content, contentLogMaxLen))

	res, err := m.assistant.Answer(ctx, q)
	if err != nil {
		m.fail(ex, err)
		return
	}

	blocks := codeblock.Extract(res.Answer)
	resolution, err := m.sessions.ResolveAiMessage(ctx, ex.SessionID, ex.MessageID, res.Answer, blocks)
	if err != nil {
		// The session was deleted while the call was in flight.
		log.Warn("dropping answer", "error", err)
		metrics.IncExchange(metrics.OutcomeError)
		ex.err = err
		return
	}
	metrics.IncExchange(metrics.OutcomeSuccess)

	ex.message = m.resolvedMessage(ex)
	m.Notify(ctx, ex.SessionID, MethodResolved, rpc.MessageNotifyParams{SessionID: ex.SessionID, Message: ex.message})
	log.Info("exchange resolved", "codeBlocks", len(blocks))

	if resolution.NeedsTitle {
		m.generateTitle(ctx, log, ex.SessionID, resolution)
	}
}

func (m *Manager) fail(ex *Exchange, cause error) {
	log := slog.With("sessionId", ex.SessionID, "messageId", ex.MessageID)
	log.Error("exchange failed", "error", cause)
	metrics.IncExchange(metrics.OutcomeError)
	ex.err = cause

	text := fmt.Sprintf("Error: %s", cause)
	if err := m.sessions.ResolveAiError(m.ctx, ex.SessionID, ex.MessageID, text); err != nil {
		log.Warn("failed to record exchange error", "error", err)
		return
	}
	ex.message = m.resolvedMessage(ex)
	m.Notify(m.ctx, ex.SessionID, MethodError, rpc.MessageNotifyParams{SessionID: ex.SessionID, Message: ex.message})
}

func (m *Manager) generateTitle(ctx context.Context, log *slog.Logger, sessionID string, res session.Resolution) {
	t := m.titles.Generate(ctx, res.UserText, res.AIText)
	changed, err := m.sessions.ApplyGeneratedTitle(ctx, sessionID, t)
	if err != nil {
		log.Warn("failed to apply generated title", "error", err)
		return
	}
	if !changed {
		return
	}
	m.Notify(ctx, sessionID, MethodTitleChanged, rpc.TitleChangedParams{SessionID: sessionID, Title: t})
	log.Info("session titled", "title", t)
}

func (m *Manager) resolvedMessage(ex *Exchange) session.Message {
	s, ok := m.sessions.Get(ex.SessionID)
	if !ok {
		return session.Message{}
	}
	for _, msg := range s.Messages {
		if msg.ID == ex.MessageID {
			return msg
		}
	}
	return session.Message{}
}

func (m *Manager) claim(ex *Exchange) bool {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if _, busy := m.inflight[ex.SessionID]; busy {
		return false
	}
	m.inflight[ex.SessionID] = ex
	return true
}

func (m *Manager) release(sessionID string) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	delete(m.inflight, sessionID)
}

// Pending returns the running exchange of a session, or nil.
func (m *Manager) Pending(sessionID string) *Exchange {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	return m.inflight[sessionID]
}

// Subscribe adds a connection to receive notifications for a session.
// Returns true if this is a new subscription.
func (m *Manager) Subscribe(sessionID string, conn Notifier) bool {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	for _, c := range m.subs[sessionID] {
		if c == conn {
			return false
		}
	}

	m.subs[sessionID] = append(m.subs[sessionID], conn)
	slog.Debug("subscribed to session", "sessionId", sessionID, "totalSubs", len(m.subs[sessionID]))
	return true
}

func (m *Manager) Unsubscribe(sessionID string, conn Notifier) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	conns := m.subs[sessionID]
	newConns := make([]Notifier, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			newConns = append(newConns, c)
		}
	}

	if len(newConns) == 0 {
		delete(m.subs, sessionID)
	} else {
		m.subs[sessionID] = newConns
	}
	slog.Debug("unsubscribed from session", "sessionId", sessionID, "totalSubs", len(newConns))
}

func (m *Manager) subscribers(sessionID string) []Notifier {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	conns := make([]Notifier, len(m.subs[sessionID]))
	copy(conns, m.subs[sessionID])
	return conns
}

// Notify sends a JSON-RPC notification to all subscribers of a session.
func (m *Manager) Notify(ctx context.Context, sessionID string, method string, params interface{}) {
	for _, conn := range m.subscribers(sessionID) {
		if err := conn.Notify(ctx, method, params); err != nil {
			slog.Debug("notify failed", "error", err, "method", method)
		}
	}
}

// Shutdown waits for running exchanges until ctx is done, then cancels
// whatever is left.
func (m *Manager) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("cancelling running exchanges")
	}
	m.cancel()
	<-done
	slog.Info("chat manager shutdown complete")
}
