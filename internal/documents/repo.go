package documents

import (
	"context"
	"time"
)

// Repo persists document metadata.
type Repo interface {
	// Insert stores a new row. A missing owner yields ErrUnknownOwner.
	Insert(ctx context.Context, doc Document) error
	// Update replaces FileName, StorageKey, FormValues and UpdatedAt when the stored
	// UpdatedAt equals expectedUpdatedAt. Otherwise ErrConflict, or ErrNotFound if the row is gone.
	Update(ctx context.Context, doc Document, expectedUpdatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (Document, error)
	// ListByOwner orders by UpdatedAt descending.
	ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]Summary, error)
	ListAllByOwner(ctx context.Context, ownerID string) ([]Document, error)
}

// OwnerLookup reports whether an owner exists.
type OwnerLookup interface {
	Exists(ctx context.Context, ownerID string) (bool, error)
}
