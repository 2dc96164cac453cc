// Package store persists model definitions and records.
//
// The interface is a generic keyed document store with secondary
// filtering over the semi-structured data document. Ownership-gated
// mutations are conditional single statements so a passed ownership
// check cannot be invalidated between check and write.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/recordd/internal/filter"
	"github.com/fyrsmithlabs/recordd/internal/schema"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOwnerMismatch is returned when a conditional owner-gated write
	// matched the entity id but not its owner.
	ErrOwnerMismatch = errors.New("owner mismatch")
)

// Record is a stored document instance governed by a model.
type Record struct {
	ID        string
	ModelID   string
	OwnerID   string
	Data      map[string]any
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence interface consumed by the services.
type Store interface {
	// CreateModel persists a new model definition.
	CreateModel(ctx context.Context, m *schema.Model) error

	// GetModel retrieves a model by id regardless of status.
	// Returns ErrNotFound if absent.
	GetModel(ctx context.Context, id string) (*schema.Model, error)

	// ListModels returns the owner's active models.
	ListModels(ctx context.Context, ownerID string) ([]*schema.Model, error)

	// UpdateModel replaces a model's mutable columns, gated on owner.
	// Returns ErrNotFound or ErrOwnerMismatch.
	UpdateModel(ctx context.Context, m *schema.Model, ownerID string) error

	// MarkModelDeleted soft-deletes a model, gated on owner.
	// Returns ErrNotFound or ErrOwnerMismatch.
	MarkModelDeleted(ctx context.Context, id, ownerID string, deletedAt time.Time) error

	// InsertRecord persists a new record.
	InsertRecord(ctx context.Context, r *Record) error

	// GetRecord retrieves a record scoped to a model.
	// Returns ErrNotFound if absent or belonging to another model.
	GetRecord(ctx context.Context, modelID, recordID string) (*Record, error)

	// QueryRecords returns records of a model matching the filter,
	// ordered by creation time descending, plus the total matching
	// count. A nil filter matches everything.
	QueryRecords(ctx context.Context, modelID string, f *filter.Filter, offset, limit int) ([]*Record, int, error)

	// UpdateRecord replaces a record's data and embedding, gated on
	// owner. Returns ErrNotFound or ErrOwnerMismatch.
	UpdateRecord(ctx context.Context, recordID, ownerID string, data map[string]any, embedding []float32, updatedAt time.Time) error

	// DeleteRecord hard-deletes a record, gated on owner.
	// Returns ErrNotFound or ErrOwnerMismatch.
	DeleteRecord(ctx context.Context, recordID, ownerID string) error

	// Close releases store resources.
	Close() error
}
