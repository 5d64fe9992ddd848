// Package session keeps per-draft agent transcripts and edit leases in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"npa/draftbuilder/internal/agent"
)

// ErrLeaseHeld is returned when another owner holds the draft's edit lease.
var ErrLeaseHeld = errors.New("draft session is held by another owner")

const defaultTTL = 30 * 24 * time.Hour

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements builder.TranscriptSink on a Redis list per draft.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "npa:draft:",
		ttl:    ttl,
	}
}

func (s *RedisStore) transcriptKey(draftID string) string {
	return s.prefix + draftID + ":transcript"
}

func (s *RedisStore) leaseKey(draftID string) string {
	return s.prefix + draftID + ":lease"
}

// AppendMessage pushes msg onto the draft transcript and refreshes its TTL.
func (s *RedisStore) AppendMessage(ctx context.Context, draftID string, msg agent.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal transcript message: %w", err)
	}

	key := s.transcriptKey(draftID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append transcript message: %w", err)
	}
	return nil
}

// LoadTranscript returns the stored transcript in append order. A draft with
// no transcript yields an empty slice.
func (s *RedisStore) LoadTranscript(ctx context.Context, draftID string) ([]agent.Message, error) {
	raw, err := s.client.LRange(ctx, s.transcriptKey(draftID), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return []agent.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	messages := make([]agent.Message, 0, len(raw))
	for i, item := range raw {
		var msg agent.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal transcript entry %d: %w", i, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AcquireLease claims the draft for owner until ttl elapses. Re-acquiring a
// lease the owner already holds extends it.
func (s *RedisStore) AcquireLease(ctx context.Context, draftID, owner string, ttl time.Duration) error {
	key := s.leaseKey(draftID)
	ok, err := s.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return nil
	}

	current, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return s.AcquireLease(ctx, draftID, owner, ttl)
	}
	if err != nil {
		return fmt.Errorf("read lease: %w", err)
	}
	if current != owner {
		return ErrLeaseHeld
	}
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	return nil
}

// ReleaseLease drops the lease only if owner still holds it.
func (s *RedisStore) ReleaseLease(ctx context.Context, draftID, owner string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.leaseKey(draftID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
