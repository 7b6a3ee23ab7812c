// Package kv is the persistence contract for browser-style local state: typed
// values stored as JSON under string keys, read with a caller default and
// written best-effort.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/omniassist/server/metrics"
)

var ErrNotFound = errors.New("kv: key not found")

// Store is a raw byte store. Implementations return ErrNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Get returns the value stored under key decoded into T. It returns def when
// the store is nil, the key is missing, the read fails, or the stored bytes do
// not decode into T. It never returns an error.
func Get[T any](ctx context.Context, s Store, key string, def T) T {
	if s == nil {
		return def
	}

	data, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("kv read failed, using default", "key", key, "error", err)
		}
		return def
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("kv value is incompatible, using default", "key", key, "error", err)
		return def
	}
	return v
}

// Set stores value under key as JSON. Failures are logged and dropped:
// persistence here is a cache, not a durability guarantee.
func Set(ctx context.Context, s Store, key string, value any) {
	if s == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		slog.Error("kv marshal failed", "key", key, "error", err)
		metrics.IncStoreWriteFailure()
		return
	}

	if err := s.Set(ctx, key, data); err != nil {
		slog.Error("kv write failed", "key", key, "error", err)
		metrics.IncStoreWriteFailure()
	}
}
