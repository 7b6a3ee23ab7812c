// Package server assembles the assistant's services and exposes them over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/omniassist/server/action"
	"github.com/omniassist/server/api"
	"github.com/omniassist/server/assistant"
	"github.com/omniassist/server/chat"
	"github.com/omniassist/server/config"
	"github.com/omniassist/server/desktop"
	"github.com/omniassist/server/kv"
	"github.com/omniassist/server/kvfactory"
	"github.com/omniassist/server/llm"
	"github.com/omniassist/server/metrics"
	"github.com/omniassist/server/middleware"
	"github.com/omniassist/server/modelfactory"
	"github.com/omniassist/server/session"
	"github.com/omniassist/server/title"
	"github.com/omniassist/server/voice"
	"github.com/omniassist/server/watch"
	"github.com/omniassist/server/websearch"
	"github.com/omniassist/server/ws"
)

// Services holds every long-lived component. Build it with New and release
// it with Close.
type Services struct {
	Store       kv.Store
	Model       llm.Model
	Assistant   *assistant.Service
	Titles      *title.Generator
	Sessions    *session.Manager
	Chat        *chat.Manager
	SessionList *watch.SessionListWatcher
	Catalog     *desktop.Catalog
	Voice       *voice.Assistant

	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the store and model described by cfg and wires the services
// together. Background watchers run until Close.
func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	store, err := kvfactory.Open(ctx, cfg.Store.URL, cfg.Server.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	model, err := NewModel(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	catalog, err := desktop.NewCatalog(cfg.Desktop.AppsFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load application catalog: %w", err)
	}

	return assemble(ctx, store, model, catalog, cfg), nil
}

// NewModel builds the configured hosted model.
func NewModel(cfg *config.Config) (llm.Model, error) {
	model, err := modelfactory.New(modelfactory.Options{
		Provider: llm.Provider(cfg.Model.Provider),
		APIKey:   cfg.Model.APIKey,
		Endpoint: cfg.Model.Endpoint,
		Model:    cfg.Model.Name,
		Timeout:  cfg.Model.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create model: %w", err)
	}
	return model, nil
}

func assemble(ctx context.Context, store kv.Store, model llm.Model, catalog *desktop.Catalog, cfg *config.Config) *Services {
	answerer := assistant.New(model, assistant.Options{
		Name:      cfg.Assistant.Name,
		MaxTokens: cfg.Model.MaxTokens,
	})
	titles := title.New(model, cfg.Assistant.Name)

	sessions := session.NewManager(ctx, store, session.Config{
		StoreKey:        cfg.Sessions.StoreKey,
		DefaultTitle:    cfg.Sessions.DefaultTitle,
		SortPinned:      cfg.Sessions.SortPinned,
		InterimTitleMax: cfg.Sessions.InterimTitleMax,
	})

	v := voice.New(voice.Deps{
		Interpreter: action.NewDispatcher(model),
		Answerer:    answerer,
		Summarizer:  websearch.NewSummarizer(model),
		Launcher:    desktop.NewLauncher(catalog),
		Catalog:     catalog,
		History:     voice.NewHistory(ctx, store, ""),
	})

	return &Services{
		Store:       store,
		Model:       model,
		Assistant:   answerer,
		Titles:      titles,
		Sessions:    sessions,
		Chat:        chat.NewManager(sessions, answerer, titles),
		SessionList: watch.NewSessionListWatcher(sessions),
		Catalog:     catalog,
		Voice:       v,
	}
}

// Start launches the session list watcher and the catalog file watcher.
func (s *Services) Start() error {
	if err := s.SessionList.Start(); err != nil {
		return fmt.Errorf("start session list watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.Catalog.Watch(ctx); err != nil {
			slog.Error("catalog watcher failed", "error", err)
		}
	}()
	return nil
}

// Close waits for in-flight exchanges, stops the watchers and closes the
// store, in that order.
func (s *Services) Close(ctx context.Context) {
	s.Chat.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.SessionList.Stop()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
}

// Handler returns the full HTTP surface:
//
//	GET /health       liveness, unauthenticated
//	GET /metrics      Prometheus, unauthenticated
//	GET /ws           JSON-RPC over WebSocket, authenticated in-band
//	/api/...          REST, bearer token
func (s *Services) Handler(token string, devMode bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("GET /ws", ws.NewRPCHandler(token, devMode, ws.Deps{
		Sessions:    s.Sessions,
		Chat:        s.Chat,
		SessionList: s.SessionList,
		Assistant:   s.Assistant,
		Voice:       s.Voice,
	}))

	api.NewSessionHandler(s.Sessions, s.Chat).Register(mux)
	api.NewAssistantHandler(s.Assistant, s.Voice).Register(mux)

	return middleware.Auth(token)(mux)
}
