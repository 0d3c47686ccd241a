package owners

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo keeps owners in memory. It also serves as the owner registry for the
// in-memory document repo so both enforce the same foreign key.
type MemoryRepo struct {
	mu     sync.RWMutex
	owners map[string]Owner
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{owners: make(map[string]Owner)}
}

func (r *MemoryRepo) Upsert(ctx context.Context, owner Owner) (Owner, error) {
	if err := ctx.Err(); err != nil {
		return Owner{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.owners[owner.ID]; ok {
		owner.CreatedAt = existing.CreatedAt
	} else {
		owner.CreatedAt = now
	}
	owner.UpdatedAt = now
	r.owners[owner.ID] = owner
	return owner, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, ownerID string) (Owner, error) {
	if err := ctx.Err(); err != nil {
		return Owner{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[ownerID]
	if !ok {
		return Owner{}, ErrNotFound
	}
	return owner, nil
}

func (r *MemoryRepo) Exists(ctx context.Context, ownerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[ownerID]
	return ok, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[ownerID]; !ok {
		return ErrNotFound
	}
	delete(r.owners, ownerID)
	return nil
}
