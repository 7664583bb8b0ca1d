package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/platform/logger"
	"github.com/rahilrshah/productivity-app/internal/store"
)

// PostgresThreadStore implements the store.ThreadStore interface using
// PostgreSQL. Conversation state travels on the log rows: the latest row's
// context_state column is the source of truth for slot filling.
type PostgresThreadStore struct {
	db store.DBTX
}

// NewPostgresThreadStore creates a new PostgresThreadStore.
func NewPostgresThreadStore(db store.DBTX) *PostgresThreadStore {
	return &PostgresThreadStore{db: db}
}

// WithTx returns a ThreadStore bound to the given transaction.
func (s *PostgresThreadStore) WithTx(tx *sql.Tx) store.ThreadStore {
	return &PostgresThreadStore{db: tx}
}

// Create persists a new thread.
func (s *PostgresThreadStore) Create(ctx context.Context, thread *domain.Thread) error {
	log := logger.FromContext(ctx)

	query := `
		INSERT INTO threads (id, user_id, status, message_count, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		thread.ID, thread.UserID, thread.Status, thread.MessageCount,
		thread.LastMessageAt, thread.CreatedAt)
	if err != nil {
		log.Error("failed to save thread", "thread_id", thread.ID, "error", err)
		return MapError(err)
	}
	return nil
}

// Get retrieves a thread by ID.
func (s *PostgresThreadStore) Get(ctx context.Context, threadID uuid.UUID) (*domain.Thread, error) {
	query := `
		SELECT id, user_id, status, message_count, last_message_at, created_at
		FROM threads WHERE id = $1
	`
	var thread domain.Thread
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&thread.ID, &thread.UserID, &thread.Status, &thread.MessageCount,
		&thread.LastMessageAt, &thread.CreatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrThreadNotFound
		}
		return nil, MapError(err)
	}
	return &thread, nil
}

// ListByUser returns the user's threads, most recently active first.
func (s *PostgresThreadStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Thread, error) {
	query := `
		SELECT id, user_id, status, message_count, last_message_at, created_at
		FROM threads
		WHERE user_id = $1
		ORDER BY last_message_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var threads []*domain.Thread
	for rows.Next() {
		var thread domain.Thread
		if err := rows.Scan(
			&thread.ID, &thread.UserID, &thread.Status, &thread.MessageCount,
			&thread.LastMessageAt, &thread.CreatedAt); err != nil {
			return nil, MapError(err)
		}
		threads = append(threads, &thread)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return threads, nil
}

// AppendLog records one turn and bumps the thread's message count and
// last-message time in the same statement batch.
func (s *PostgresThreadStore) AppendLog(ctx context.Context, tlog *domain.ThreadLog) error {
	log := logger.FromContext(ctx)

	var state []byte
	if tlog.State != nil {
		var err error
		state, err = json.Marshal(tlog.State)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation state: %w", err)
		}
	}

	query := `
		INSERT INTO agent_logs (id, thread_id, user_input, ai_response, context_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		tlog.ID, tlog.ThreadID, tlog.UserInput, tlog.Response, state, tlog.CreatedAt); err != nil {
		log.Error("failed to append thread log", "thread_id", tlog.ThreadID, "error", err)
		return MapError(err)
	}

	bump := `
		UPDATE threads SET message_count = message_count + 1, last_message_at = $1
		WHERE id = $2
	`
	result, err := s.db.ExecContext(ctx, bump, tlog.CreatedAt, tlog.ThreadID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, "thread")
}

// Logs returns a thread's turns in submission order.
func (s *PostgresThreadStore) Logs(ctx context.Context, threadID uuid.UUID) ([]*domain.ThreadLog, error) {
	query := `
		SELECT id, thread_id, user_input, ai_response, context_state, created_at
		FROM agent_logs
		WHERE thread_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*domain.ThreadLog
	for rows.Next() {
		tlog, err := scanThreadLog(rows)
		if err != nil {
			return nil, MapError(err)
		}
		logs = append(logs, tlog)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return logs, nil
}

// LatestState returns the conversation state stored with the most recent
// turn, or nil when the thread has no turns or the last turn resolved it.
func (s *PostgresThreadStore) LatestState(ctx context.Context, threadID uuid.UUID) (*domain.ConversationState, error) {
	query := `
		SELECT context_state FROM agent_logs
		WHERE thread_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var state []byte
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(&state)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, nil
		}
		return nil, MapError(err)
	}
	if len(state) == 0 {
		return nil, nil
	}

	var cs domain.ConversationState
	if err := json.Unmarshal(state, &cs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &cs, nil
}

func scanThreadLog(row rowScanner) (*domain.ThreadLog, error) {
	var (
		tlog  domain.ThreadLog
		state []byte
	)
	if err := row.Scan(&tlog.ID, &tlog.ThreadID, &tlog.UserInput, &tlog.Response,
		&state, &tlog.CreatedAt); err != nil {
		return nil, err
	}
	if len(state) > 0 {
		var cs domain.ConversationState
		if err := json.Unmarshal(state, &cs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
		}
		tlog.State = &cs
	}
	return &tlog, nil
}
