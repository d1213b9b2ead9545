// Package redis implements an engine storage backend using Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/micromdm/nanoscreen/engine/storage"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is prepended to state IDs to form Redis keys.
const DefaultKeyPrefix = "nanoscreen:state:"

// RedisStorage implements a storage.Storage using Redis.
// Records are plain string values holding the state JSON.
type RedisStorage struct {
	client goredis.Cmdable
	prefix string
}

type config struct {
	url    string
	client goredis.Cmdable
	prefix string
}

// Option allows configuring a RedisStorage.
type Option func(*config)

// WithURL sets the Redis connection URL, e.g. redis://localhost:6379/0.
func WithURL(url string) Option {
	return func(c *config) {
		c.url = url
	}
}

// WithClient sets a custom Redis client.
// If set, the URL passed via WithURL is ignored.
func WithClient(client goredis.Cmdable) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// New creates and returns a new RedisStorage.
func New(ctx context.Context, opts ...Option) (*RedisStorage, error) {
	cfg := &config{prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.client == nil {
		redisOpts, err := goredis.ParseURL(cfg.url)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		cfg.client = goredis.NewClient(redisOpts)
	}
	if err := cfg.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStorage{client: cfg.client, prefix: cfg.prefix}, nil
}

// RetrieveState returns the state record for id.
func (s *RedisStorage) RetrieveState(ctx context.Context, id string) (*storage.State, error) {
	if id == "" {
		return nil, storage.ErrMissingID
	}
	doc, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", storage.ErrStateNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	state := new(storage.State)
	if err = json.Unmarshal(doc, state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, nil
}

// StoreState writes state for id. Records do not expire.
func (s *RedisStorage) StoreState(ctx context.Context, id string, state *storage.State) error {
	if id == "" {
		return storage.ErrMissingID
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("validating state: %w", err)
	}
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err = s.client.Set(ctx, s.prefix+id, doc, 0).Err(); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}
