package owners

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("owner not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrHasDocuments means the owner still has document rows and cannot be removed.
	ErrHasDocuments = errors.New("owner still has documents")
)

type Repo interface {
	Upsert(ctx context.Context, owner Owner) (Owner, error)
	GetByID(ctx context.Context, ownerID string) (Owner, error)
	Exists(ctx context.Context, ownerID string) (bool, error)
	Delete(ctx context.Context, ownerID string) error
}
