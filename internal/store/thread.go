package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
)

// ThreadStore defines the interface for conversation threads and their
// per-turn logs. The conversation state persisted on the latest log row is
// the source of truth for slot filling across replicas.
// Version: 1.0
type ThreadStore interface {
	// Create persists a new thread.
	Create(ctx context.Context, thread *domain.Thread) error

	// Get retrieves a thread by ID. Returns ErrThreadNotFound if absent.
	Get(ctx context.Context, threadID uuid.UUID) (*domain.Thread, error)

	// ListByUser returns the user's threads, most recently active first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Thread, error)

	// AppendLog records one turn and bumps the thread's message count and
	// last-message time.
	AppendLog(ctx context.Context, log *domain.ThreadLog) error

	// Logs returns a thread's turns in submission order.
	Logs(ctx context.Context, threadID uuid.UUID) ([]*domain.ThreadLog, error)

	// LatestState returns the conversation state stored with the thread's
	// most recent turn, or nil when the last turn resolved it.
	LatestState(ctx context.Context, threadID uuid.UUID) (*domain.ConversationState, error)

	// WithTx returns a ThreadStore bound to the given transaction.
	WithTx(tx *sql.Tx) ThreadStore
}

// StateCache is an optional, best-effort cache of conversation state keyed
// by thread. A miss or error simply means falling back to the persisted
// state; correctness never depends on the cache.
type StateCache interface {
	Get(ctx context.Context, threadID uuid.UUID) (*domain.ConversationState, error)
	Set(ctx context.Context, threadID uuid.UUID, state *domain.ConversationState) error
	Clear(ctx context.Context, threadID uuid.UUID) error
}

// NopStateCache satisfies StateCache without caching anything. It is wired
// when no cache backend is configured.
type NopStateCache struct{}

func (NopStateCache) Get(ctx context.Context, threadID uuid.UUID) (*domain.ConversationState, error) {
	return nil, ErrNotFound
}

func (NopStateCache) Set(ctx context.Context, threadID uuid.UUID, state *domain.ConversationState) error {
	return nil
}

func (NopStateCache) Clear(ctx context.Context, threadID uuid.UUID) error {
	return nil
}
