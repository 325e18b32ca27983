package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"voicedesk/agent/internal/session"
)

const defaultTTL = 24 * time.Hour

// RedisStore stores snapshots as JSON under prefix:session:<id> with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

type RedisOption func(*RedisStore)

// WithTTL sets the snapshot lifetime. Zero keeps snapshots forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: defaultTTL, prefix: "voicedesk"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string { return s.prefix + ":session:" + id }

func (s *RedisStore) Save(ctx context.Context, snap session.Snapshot) error {
	if snap.ID == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(snap.ID), data, s.ttl).Err(); err != nil {
		metricOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	metricOps.WithLabelValues("save", "ok").Inc()
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (session.Snapshot, error) {
	if id == "" {
		return session.Snapshot{}, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metricOps.WithLabelValues("load", "miss").Inc()
			return session.Snapshot{}, ErrNotFound
		}
		metricOps.WithLabelValues("load", "error").Inc()
		return session.Snapshot{}, fmt.Errorf("redis get: %w", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	metricOps.WithLabelValues("load", "ok").Inc()
	return snap, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
