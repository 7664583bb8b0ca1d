package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rahilrshah/productivity-app/internal/domain"
)

// RecordStore defines the interface to the hierarchical record store the
// workers write into. The store itself is an external collaborator; this
// contract covers only the fields the orchestration subsystem reads and
// writes.
// Version: 1.0
type RecordStore interface {
	// Create persists a new record.
	Create(ctx context.Context, record *domain.Record) error

	// CreateBatch persists the records atomically: either all of them land
	// or none do. Used when one operation fans out into several records,
	// such as a container with seeded items.
	CreateBatch(ctx context.Context, records []*domain.Record) error

	// Update persists changes to an existing record. Returns
	// ErrRecordNotFound if the record does not exist.
	Update(ctx context.Context, record *domain.Record) error

	// Get retrieves a record by ID. Returns ErrRecordNotFound if absent.
	Get(ctx context.Context, recordID uuid.UUID) (*domain.Record, error)

	// ListContainers returns the user's container records (courses,
	// projects, clubs), used as the context snapshot for classification
	// and name resolution.
	ListContainers(ctx context.Context, userID uuid.UUID) ([]*domain.Record, error)

	// ListScheduledBetween returns the user's records scheduled in
	// [from, to), used by the find-slot scan.
	ListScheduledBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.Record, error)

	// WithTx returns a RecordStore bound to the given transaction.
	WithTx(tx *sql.Tx) RecordStore
}
