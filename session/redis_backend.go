package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements StorageBackend on Redis, for operators who
// want session continuity across an instance's idle-reap and restart
// without claiming the full cross-restart durability Non-goals
// disclaims for runtime state generally.
//
// Adapted from pkg/session/redis_backend.go: same key layout and
// pipeline usage, "aixgo:session:" prefix renamed and entries JSON
// now carrying an envelope.Envelope payload rather than a provider
// message map.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection settings for NewRedisBackend.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string
	SessionTTL time.Duration
	PoolSize   int
}

// NewRedisBackend dials addr and verifies the connection with a Ping.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("session: redis address is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentrt:session:"
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping: %w", err)
	}

	return &RedisBackend{client: client, prefix: prefix, ttl: cfg.SessionTTL}, nil
}

// NewRedisBackendFromClient wraps an already-configured client, used
// in tests to point at a miniredis instance.
func NewRedisBackendFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = "agentrt:session:"
	}
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) sessionKey(id string) string             { return b.prefix + "meta:" + id }
func (b *RedisBackend) entriesKey(id string) string              { return b.prefix + "entries:" + id }
func (b *RedisBackend) agentIndexKey(agentName string) string    { return b.prefix + "agent:" + agentName }
func (b *RedisBackend) userIndexKey(userID string) string        { return b.prefix + "user:" + userID }
func (b *RedisBackend) checkpointKey(id string) string           { return b.prefix + "checkpoint:" + id }
func (b *RedisBackend) sessionCheckpointsKey(id string) string   { return b.prefix + "session-checkpoints:" + id }

func (b *RedisBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

func (b *RedisBackend) SaveSession(ctx context.Context, meta *SessionMetadata) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("session: marshal metadata: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.sessionKey(meta.ID), data, b.ttl)
	pipe.SAdd(ctx, b.agentIndexKey(meta.AgentName), meta.ID)
	if meta.UserID != "" {
		pipe.SAdd(ctx, b.userIndexKey(meta.UserID), meta.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (b *RedisBackend) LoadSession(ctx context.Context, sessionID string) (*SessionMetadata, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	data, err := b.client.Get(ctx, b.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("session: unmarshal metadata: %w", err)
	}
	return &meta, nil
}

func (b *RedisBackend) DeleteSession(ctx context.Context, sessionID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	meta, err := b.LoadSession(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.Del(ctx, b.sessionKey(sessionID))
	pipe.Del(ctx, b.entriesKey(sessionID))
	if meta != nil {
		pipe.SRem(ctx, b.agentIndexKey(meta.AgentName), sessionID)
		if meta.UserID != "" {
			pipe.SRem(ctx, b.userIndexKey(meta.UserID), sessionID)
		}
	}
	if ids, err := b.client.SMembers(ctx, b.sessionCheckpointsKey(sessionID)).Result(); err == nil {
		for _, id := range ids {
			pipe.Del(ctx, b.checkpointKey(id))
		}
	}
	pipe.Del(ctx, b.sessionCheckpointsKey(sessionID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

func (b *RedisBackend) ListSessions(ctx context.Context, agentName string, opts ListOptions) ([]*SessionMetadata, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var ids []string
	var err error
	if opts.UserID != "" {
		ids, err = b.client.SInter(ctx, b.agentIndexKey(agentName), b.userIndexKey(opts.UserID)).Result()
	} else {
		ids, err = b.client.SMembers(ctx, b.agentIndexKey(agentName)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	sort.Strings(ids)

	start := opts.Offset
	if start >= len(ids) {
		return []*SessionMetadata{}, nil
	}
	end := len(ids)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	ids = ids[start:end]

	out := make([]*SessionMetadata, 0, len(ids))
	for _, id := range ids {
		meta, err := b.LoadSession(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				b.client.SRem(ctx, b.agentIndexKey(agentName), id)
				continue
			}
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

func (b *RedisBackend) AppendEntry(ctx context.Context, sessionID string, entry *SessionEntry) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("session: marshal entry: %w", err)
	}
	if err := b.client.RPush(ctx, b.entriesKey(sessionID), data).Err(); err != nil {
		return fmt.Errorf("session: append entry: %w", err)
	}
	if b.ttl > 0 {
		b.client.Expire(ctx, b.entriesKey(sessionID), b.ttl)
	}
	return nil
}

func (b *RedisBackend) LoadEntries(ctx context.Context, sessionID string) ([]*SessionEntry, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	data, err := b.client.LRange(ctx, b.entriesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: load entries: %w", err)
	}
	out := make([]*SessionEntry, 0, len(data))
	for _, d := range data {
		var e SessionEntry
		if err := json.Unmarshal([]byte(d), &e); err != nil {
			return nil, fmt.Errorf("session: unmarshal entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

func (b *RedisBackend) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("session: marshal checkpoint: %w", err)
	}
	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.checkpointKey(checkpoint.ID), data, b.ttl)
	pipe.SAdd(ctx, b.sessionCheckpointsKey(checkpoint.SessionID), checkpoint.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: save checkpoint: %w", err)
	}
	return nil
}

func (b *RedisBackend) LoadCheckpoint(ctx context.Context, checkpointID string) (*Checkpoint, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	data, err := b.client.Get(ctx, b.checkpointKey(checkpointID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("session: get checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("session: unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func (b *RedisBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

// Ping reports whether the Redis connection is alive; after Close it
// returns the closed-backend error without contacting Redis.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.client.Ping(ctx).Err()
}
