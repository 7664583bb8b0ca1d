package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
	"github.com/rahilrshah/productivity-app/internal/platform/logger"
	"github.com/rahilrshah/productivity-app/internal/store"
)

const recordColumns = `id, user_id, parent_id, title, category, legacy_type,
	due_date, scheduled_at, duration_min, priority, notes, metadata,
	created_at, updated_at`

// PostgresRecordStore implements the store.RecordStore interface using
// PostgreSQL. The record store proper is an external system; this
// implementation covers the contract surface the orchestration subsystem
// needs.
type PostgresRecordStore struct {
	db store.DBTX
}

// NewPostgresRecordStore creates a new PostgresRecordStore.
func NewPostgresRecordStore(db store.DBTX) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// WithTx returns a RecordStore bound to the given transaction.
func (s *PostgresRecordStore) WithTx(tx *sql.Tx) store.RecordStore {
	return &PostgresRecordStore{db: tx}
}

// Create persists a new record.
func (s *PostgresRecordStore) Create(ctx context.Context, record *domain.Record) error {
	log := logger.FromContext(ctx)

	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO records
			(id, user_id, parent_id, title, category, legacy_type, due_date,
			 scheduled_at, duration_min, priority, notes, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.ParentID, record.Title, record.Category,
		record.LegacyType, record.DueDate, record.ScheduledAt, record.DurationMin,
		record.Priority, record.Notes, metadata, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		log.Error("failed to save record", "record_id", record.ID, "error", err)
		return MapError(err)
	}
	return nil
}

// CreateBatch persists the records in one transaction. When the store is
// already bound to a transaction the records join it instead.
func (s *PostgresRecordStore) CreateBatch(ctx context.Context, records []*domain.Record) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		for _, r := range records {
			if err := s.Create(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}

	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.WithTx(tx)
		for _, r := range records {
			if err := txStore.Create(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update persists changes to an existing record.
func (s *PostgresRecordStore) Update(ctx context.Context, record *domain.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE records SET
			parent_id = $1, title = $2, category = $3, legacy_type = $4,
			due_date = $5, scheduled_at = $6, duration_min = $7, priority = $8,
			notes = $9, metadata = $10, updated_at = $11
		WHERE id = $12 AND user_id = $13
	`
	result, err := s.db.ExecContext(ctx, query,
		record.ParentID, record.Title, record.Category, record.LegacyType,
		record.DueDate, record.ScheduledAt, record.DurationMin, record.Priority,
		record.Notes, metadata, time.Now().UTC(), record.ID, record.UserID)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(result, "record"); err != nil {
		return store.ErrRecordNotFound
	}
	return nil
}

// Get retrieves a record by ID.
func (s *PostgresRecordStore) Get(ctx context.Context, recordID uuid.UUID) (*domain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, recordID))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrRecordNotFound
		}
		return nil, MapError(err)
	}
	return record, nil
}

// ListContainers returns the user's container records, newest first.
func (s *PostgresRecordStore) ListContainers(ctx context.Context, userID uuid.UUID) ([]*domain.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = $1 AND category IN ($2, $3, $4)
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID,
		domain.CategoryCourse, domain.CategoryProject, domain.CategoryClub)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

// ListScheduledBetween returns the user's records scheduled in [from, to).
func (s *PostgresRecordStore) ListScheduledBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at
	`
	rows, err := s.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]*domain.Record, error) {
	var records []*domain.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, MapError(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return records, nil
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		record      domain.Record
		parentID    uuid.NullUUID
		dueDate     sql.NullTime
		scheduledAt sql.NullTime
		notes       sql.NullString
		metadata    []byte
	)
	err := row.Scan(
		&record.ID, &record.UserID, &parentID, &record.Title, &record.Category,
		&record.LegacyType, &dueDate, &scheduledAt, &record.DurationMin,
		&record.Priority, &notes, &metadata, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		id := parentID.UUID
		record.ParentID = &id
	}
	if dueDate.Valid {
		t := dueDate.Time
		record.DueDate = &t
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		record.ScheduledAt = &t
	}
	record.Notes = notes.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record metadata: %w", err)
		}
	}
	return &record, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record metadata: %w", err)
	}
	return data, nil
}
