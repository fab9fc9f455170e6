// Package store defines the persistence contract for document snapshots.
// Implementations live in subpackages (mongostore, sqlstore) and may be
// wrapped by the Redis snapshot cache.
package store

import (
	"context"
	"errors"

	"collabtext/internal/models"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore maps a documentId to its latest snapshot. Every implementation
// keeps at most one record per documentId.
type DocumentStore interface {
	Get(ctx context.Context, documentID string) (*models.Document, error)
	// GetOrCreate returns the existing record or atomically inserts an empty one.
	GetOrCreate(ctx context.Context, documentID string) (*models.Document, error)
	Upsert(ctx context.Context, documentID, content string) (*models.Document, error)
	List(ctx context.Context) ([]models.Document, error)
	Delete(ctx context.Context, documentID string) error
	Clear(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
