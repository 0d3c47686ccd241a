package documents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu     sync.RWMutex
	docs   map[string]Document
	owners OwnerLookup
}

// NewMemoryRepo constructs a MemoryRepo. When owners is non-nil, Insert rejects unknown owners.
func NewMemoryRepo(owners OwnerLookup) *MemoryRepo {
	return &MemoryRepo{docs: make(map[string]Document), owners: owners}
}

func (r *MemoryRepo) Insert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.owners != nil {
		ok, err := r.owners.Exists(ctx, doc.OwnerID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownOwner
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return fmt.Errorf("insert document %s: %w", doc.ID, ErrConflict)
	}
	doc.FormValues = cloneValues(doc.FormValues)
	r.docs[doc.ID] = doc
	return nil
}

func (r *MemoryRepo) Update(ctx context.Context, doc Document, expectedUpdatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if !current.UpdatedAt.Equal(expectedUpdatedAt) {
		return ErrConflict
	}
	current.FileName = doc.FileName
	current.StorageKey = doc.StorageKey
	current.FormValues = cloneValues(doc.FormValues)
	current.UpdatedAt = doc.UpdatedAt
	r.docs[doc.ID] = current
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc.FormValues = cloneValues(doc.FormValues)
	return doc, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]Summary, error) {
	docs, err := r.ownedBy(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(opts.Search))

	out := make([]Summary, 0, len(docs))
	for _, doc := range docs {
		if opts.Kind != "" && doc.Kind != opts.Kind {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.FileName), search) {
			continue
		}
		out = append(out, doc.Summary())
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListAllByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	docs, err := r.ownedBy(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].FormValues = cloneValues(docs[i].FormValues)
	}
	return docs, nil
}

// ownedBy returns the owner's rows, newest UpdatedAt first.
func (r *MemoryRepo) ownedBy(ctx context.Context, ownerID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var docs []Document
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			docs = append(docs, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

var _ Repo = (*MemoryRepo)(nil)
