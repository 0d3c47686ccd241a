package owners

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cvcreator-backend/internal/documents"
	"cvcreator-backend/internal/shared/telemetry"
)

// DocumentPurger removes every document of an owner.
type DocumentPurger interface {
	DeleteOwner(ctx context.Context, ownerID string) (documents.PurgeResult, error)
}

type Service struct {
	Repo      Repo
	Documents DocumentPurger
}

func NewService(repo Repo, docs DocumentPurger) *Service {
	return &Service{Repo: repo, Documents: docs}
}

// PurgeResult reports an owner removal.
type PurgeResult struct {
	Documents    documents.PurgeResult `json:"documents"`
	OwnerDeleted bool                  `json:"ownerDeleted"`
}

// Register creates the owner or refreshes its profile.
func (s *Service) Register(ctx context.Context, owner Owner) (Owner, error) {
	if s == nil || s.Repo == nil {
		return Owner{}, errors.New("owners service not configured")
	}
	owner.ID = strings.TrimSpace(owner.ID)
	owner.Email = strings.TrimSpace(owner.Email)
	owner.FullName = strings.TrimSpace(owner.FullName)
	if owner.ID == "" {
		return Owner{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	if owner.Email != "" && !strings.Contains(owner.Email, "@") {
		return Owner{}, fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return s.Repo.Upsert(ctx, owner)
}

func (s *Service) GetByID(ctx context.Context, ownerID string) (Owner, error) {
	if s == nil || s.Repo == nil {
		return Owner{}, errors.New("owners service not configured")
	}
	if strings.TrimSpace(ownerID) == "" {
		return Owner{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, ownerID)
}

// Purge deletes the owner's documents and then the owner. The owner row is kept when any
// document could not be removed, so the remaining rows still resolve.
func (s *Service) Purge(ctx context.Context, ownerID string) (PurgeResult, error) {
	if s == nil || s.Repo == nil || s.Documents == nil {
		return PurgeResult{}, errors.New("owners service not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return PurgeResult{}, fmt.Errorf("%w: owner id is required", ErrInvalidInput)
	}

	docs, err := s.Documents.DeleteOwner(ctx, ownerID)
	result := PurgeResult{Documents: docs}
	if err != nil {
		return result, fmt.Errorf("purge documents of %s: %w", ownerID, err)
	}

	switch err := s.Repo.Delete(ctx, ownerID); {
	case err == nil:
		result.OwnerDeleted = true
	case errors.Is(err, ErrNotFound):
	default:
		return result, fmt.Errorf("delete owner %s: %w", ownerID, err)
	}

	telemetry.Info("owners.purged", map[string]any{
		"owner_id":          ownerID,
		"documents_deleted": docs.Deleted,
		"owner_deleted":     result.OwnerDeleted,
	})
	return result, nil
}
