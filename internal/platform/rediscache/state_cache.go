// Package rediscache provides a Redis-backed cache of conversation state.
// The cache is strictly best-effort: the state persisted with the thread's
// last turn remains the source of truth, and a cache miss or Redis outage
// only costs an extra database read.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/store"
)

var _ store.StateCache = (*StateCache)(nil)

// StateCache caches conversation state in Redis with a bounded TTL so
// abandoned clarification threads age out on their own.
type StateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a StateCache against the given Redis address. The TTL bounds
// how long an abandoned slot-filling conversation stays cached.
func New(addr string, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Ping verifies connectivity, for startup checks.
func (c *StateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *StateCache) Close() error {
	return c.client.Close()
}

func stateKey(threadID uuid.UUID) string {
	return fmt.Sprintf("conv_state:%s", threadID)
}

// Get returns the cached state for the thread, or store.ErrNotFound on a
// miss.
func (c *StateCache) Get(ctx context.Context, threadID uuid.UUID) (*domain.ConversationState, error) {
	data, err := c.client.Get(ctx, stateKey(threadID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var state domain.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached conversation state: %w", err)
	}
	return &state, nil
}

// Set caches the state for the thread with the configured TTL.
func (c *StateCache) Set(ctx context.Context, threadID uuid.UUID, state *domain.ConversationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	return c.client.Set(ctx, stateKey(threadID), data, c.ttl).Err()
}

// Clear drops the cached state for the thread.
func (c *StateCache) Clear(ctx context.Context, threadID uuid.UUID) error {
	return c.client.Del(ctx, stateKey(threadID)).Err()
}
