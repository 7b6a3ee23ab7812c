// Package rediskv stores kv values in Redis under a key prefix.
package rediskv

import (
	"context"
	"fmt"

	"gopkg.in/redis.v5"

	"github.com/omniassist/server/kv"
)

const DefaultPrefix = "_OMNIASSIST_"

type Store struct {
	client *redis.Client
	prefix string
}

// New connects to the Redis server at url and verifies the connection.
func New(url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("rediskv: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("rediskv: connect: %w", err)
	}

	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}, nil
}

// redis.v5 has no context support; ctx is honoured only before the call.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(s.prefix + key).Bytes()
	if err == redis.Nil {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rediskv: get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.client.Set(s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("rediskv: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.client.Del(s.prefix + key).Err(); err != nil {
		return fmt.Errorf("rediskv: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ kv.Store = (*Store)(nil)
