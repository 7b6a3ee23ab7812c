package watch

import (
	"context"
	"log/slog"

	"github.com/omniassist/server/session"
)

const MethodSessionListChanged = "session.list.changed"

// SessionSource is the part of session.Manager the watcher needs.
type SessionSource interface {
	List() []session.Session
	SetOnChangeListener(listener session.OnChangeListener)
}

// SessionListWatcher notifies subscribers when the session list changes.
// Events are queued on a channel so the session manager's lock is never held
// during network I/O.
type SessionListWatcher struct {
	subs    *subscribers
	source  SessionSource
	eventCh chan session.SessionChangeEvent

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSessionListWatcher(source SessionSource) *SessionListWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &SessionListWatcher{
		subs:    newSubscribers("sl"),
		source:  source,
		eventCh: make(chan session.SessionChangeEvent, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	source.SetOnChangeListener(w)
	return w
}

func (w *SessionListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SessionListWatcher started")
	return nil
}

func (w *SessionListWatcher) Stop() {
	w.cancel()
	slog.Info("SessionListWatcher stopped")
}

func (w *SessionListWatcher) eventLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		}
	}
}

func (w *SessionListWatcher) notifyChange(event session.SessionChangeEvent) {
	if w.subs.len() == 0 {
		return
	}

	w.subs.notifyAll(w.ctx, MethodSessionListChanged, func(sub *Subscription) any {
		params := sessionListChangedParams{
			ID:        sub.ID,
			Operation: string(event.Op),
		}
		if event.Op == session.OperationDelete {
			params.SessionID = event.Session.ID
		} else {
			s := event.Session
			params.Session = &s
		}
		return params
	})

	slog.Debug("notified session list change", "operation", event.Op, "sessionId", event.Session.ID)
}

// Subscribe registers a subscriber and returns the subscription ID along with
// the current session list.
func (w *SessionListWatcher) Subscribe(conn Notifier, connID string) (string, []session.Session) {
	// Subscribe before listing so no change between the two is missed.
	id := w.subs.add(connID, conn)

	sessions := w.source.List()
	slog.Debug("session list subscription added", "watchId", id, "connId", connID)
	return id, sessions
}

func (w *SessionListWatcher) Unsubscribe(id string) {
	if w.subs.remove(id) {
		slog.Debug("session list subscription removed", "watchId", id)
	}
}

type sessionListChangedParams struct {
	ID        string           `json:"id"`
	Operation string           `json:"operation"`
	Session   *session.Session `json:"session,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
}

// CleanupConnection drops every subscription owned by connID.
func (w *SessionListWatcher) CleanupConnection(connID string) {
	if n := w.subs.dropConn(connID); n > 0 {
		slog.Debug("cleaned up connection subscriptions", "connId", connID, "count", n)
	}
}

func (w *SessionListWatcher) HasSubscriptions() bool {
	return w.subs.len() > 0
}

// OnSessionChange implements session.OnChangeListener. It runs under the
// session manager's lock and must not block.
func (w *SessionListWatcher) OnSessionChange(event session.SessionChangeEvent) {
	if w.ctx.Err() != nil {
		return
	}

	// TODO: when the buffer overflows, disconnect subscribers to force a
	// re-sync instead of dropping the event.
	select {
	case w.eventCh <- event:
	default:
		slog.Warn("session list change event dropped (buffer full)", "operation", event.Op)
	}
}
