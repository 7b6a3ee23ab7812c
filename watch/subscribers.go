// Package watch fans session changes out to websocket subscribers.
package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"
)

// Notifier is satisfied by *jsonrpc2.Conn.
type Notifier interface {
	Notify(ctx context.Context, method string, params interface{}, opts ...jsonrpc2.CallOption) error
}

type Subscription struct {
	ID     string
	ConnID string
	Conn   Notifier
}

// subscribers indexes subscriptions by id and by owning connection, so a
// closed connection can drop all of its subscriptions at once.
type subscribers struct {
	prefix string

	mu     sync.RWMutex
	byID   map[string]*Subscription
	byConn map[string]map[string]struct{}
}

func newSubscribers(prefix string) *subscribers {
	return &subscribers{
		prefix: prefix,
		byID:   make(map[string]*Subscription),
		byConn: make(map[string]map[string]struct{}),
	}
}

func (s *subscribers) add(connID string, conn Notifier) string {
	id := s.prefix + "_" + uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = &Subscription{ID: id, ConnID: connID, Conn: conn}
	if s.byConn[connID] == nil {
		s.byConn[connID] = make(map[string]struct{})
	}
	s.byConn[connID][id] = struct{}{}
	return id
}

func (s *subscribers) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	if ids := s.byConn[sub.ConnID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byConn, sub.ConnID)
		}
	}
	return true
}

func (s *subscribers) dropConn(connID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byConn[connID]
	for id := range ids {
		delete(s.byID, id)
	}
	delete(s.byConn, connID)
	return len(ids)
}

func (s *subscribers) snapshot() []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]*Subscription, 0, len(s.byID))
	for _, sub := range s.byID {
		subs = append(subs, sub)
	}
	return subs
}

func (s *subscribers) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// notifyAll sends one notification per subscription. Failures are logged;
// the connection's cleanup removes dead subscribers.
func (s *subscribers) notifyAll(ctx context.Context, method string, makeParams func(sub *Subscription) any) int {
	subs := s.snapshot()
	for _, sub := range subs {
		if err := sub.Conn.Notify(ctx, method, makeParams(sub)); err != nil {
			slog.Debug("failed to notify subscriber", "watchId", sub.ID, "error", err)
		}
	}
	return len(subs)
}
