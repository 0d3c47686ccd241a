package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cvcreator-backend/internal/render"
	"cvcreator-backend/internal/shared/cache"
	"cvcreator-backend/internal/shared/metrics"
	"cvcreator-backend/internal/shared/storage/object"
	"cvcreator-backend/internal/shared/telemetry"
)

const (
	pdfContentType      = "application/pdf"
	defaultSignedURLTTL = 60 * time.Second
	cleanupTimeout      = 15 * time.Second
	maxSettleAttempts   = 3
)

var pdfMagic = []byte("%PDF-")

// TemplateRenderer turns form values into HTML. Unknown templates fail with render.ErrTemplateNotFound.
type TemplateRenderer interface {
	Render(ctx context.Context, name string, data any) (string, error)
}

// PdfRenderer turns HTML into PDF bytes.
type PdfRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

// Service keeps document rows and their blobs consistent.
type Service struct {
	Repo      Repo
	Store     object.Store
	Templates TemplateRenderer
	PDF       PdfRenderer

	// Cache memoizes metadata and file reads per (requester, document). Nil disables caching.
	Cache       cache.Cache
	CachePolicy cache.Policy
	// InvalidateOnWrite evicts the owner's cached reads on Update and Delete.
	// Without it a cached read may be served until its TTL lapses.
	InvalidateOnWrite bool

	SignedURLTTL time.Duration

	Now   func() time.Time
	NewID func() string
}

// Generate renders a document and, when an owner is given, stores it. The PDF is returned
// even if storing fails; that failure is logged and counted instead.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (Generated, error) {
	if !req.Kind.Valid() {
		return Generated{}, invalid(fmt.Sprintf("unknown document kind %q", req.Kind))
	}
	templateName, err := resolveTemplate(req.Kind, req.TemplateName)
	if err != nil {
		return Generated{}, err
	}
	if err := ValidateFormValues(req.Kind, req.FormValues); err != nil {
		return Generated{}, err
	}

	pdf, err := s.render(ctx, templateName, req.FormValues)
	if err != nil {
		return Generated{}, err
	}
	metrics.IncGenerated()

	out := Generated{PDF: pdf, FileName: DeriveFileName(req.Kind, req.FormValues)}
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return out, nil
	}

	doc, err := s.persist(ctx, ownerID, req.Kind, out.FileName, req.FormValues, pdf)
	if err != nil {
		metrics.IncPersistFailed()
		telemetry.Error("documents.persist_failed", map[string]any{
			"owner_id": ownerID,
			"kind":     string(req.Kind),
			"error":    err,
		})
		return out, nil
	}
	metrics.IncPersisted()
	telemetry.Info("documents.persisted", map[string]any{
		"document_id": doc.ID,
		"owner_id":    ownerID,
		"kind":        string(req.Kind),
	})
	out.Document = &doc
	return out, nil
}

func (s *Service) persist(ctx context.Context, ownerID string, kind Kind, fileName string, values map[string]any, pdf []byte) (Document, error) {
	id := s.newID()
	now := s.now()
	doc := Document{
		ID:         id,
		OwnerID:    ownerID,
		Kind:       kind,
		FileName:   fileName,
		StorageKey: kind.Folder() + "/" + id + ".pdf",
		FormValues: values,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.Store.Put(ctx, doc.StorageKey, pdf, pdfContentType); err != nil {
		return Document{}, blobError("put", doc.StorageKey, err)
	}
	if err := s.Repo.Insert(ctx, doc); err != nil {
		s.deleteBlobBestEffort(ctx, doc.StorageKey, "insert_failed")
		return Document{}, repoError("insert", doc.ID, err)
	}
	return doc, nil
}

// List returns the owner's documents, newest UpdatedAt first.
func (s *Service) List(ctx context.Context, ownerID string, opts ListOptions) ([]Summary, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalid("owner id is required")
	}
	if opts.Kind != "" && !opts.Kind.Valid() {
		return nil, invalid(fmt.Sprintf("unknown document kind %q", opts.Kind))
	}
	opts.Search = strings.TrimSpace(opts.Search)

	items, err := s.Repo.ListByOwner(ctx, ownerID, opts)
	if err != nil {
		return nil, repoError("list", ownerID, err)
	}
	return items, nil
}

// Find returns document metadata without any ownership check.
func (s *Service) Find(ctx context.Context, id string) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, ErrNotFound
	}
	doc, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return Document{}, repoError("get", id, err)
	}
	return doc, nil
}

// FindForRequester returns metadata for the requester's own document, served from the access cache.
func (s *Service) FindForRequester(ctx context.Context, requesterID, id string) (Document, error) {
	raw, err := s.cache().GetOrLoad(ctx, metaCacheKey(requesterID, id), s.CachePolicy, func(ctx context.Context) ([]byte, error) {
		doc, err := s.findOwned(ctx, requesterID, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(doc)
	})
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode cached document %s: %w", id, err)
	}
	return doc, nil
}

func (s *Service) findOwned(ctx context.Context, requesterID, id string) (Document, error) {
	doc, err := s.Find(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.OwnerID != requesterID {
		return Document{}, ErrForbidden
	}
	return doc, nil
}

// Download returns the PDF for the requester's own document. A row whose blob is gone reports ErrNotFound.
// Only the file is memoized; the storage key is always read from the row, since rotation
// deletes the blob a cached row would still name.
func (s *Service) Download(ctx context.Context, id, requesterID string) (File, error) {
	raw, err := s.cache().GetOrLoad(ctx, fileCacheKey(requesterID, id), s.CachePolicy, func(ctx context.Context) ([]byte, error) {
		doc, err := s.findOwned(ctx, requesterID, id)
		if err != nil {
			return nil, err
		}
		data, err := s.Store.Get(ctx, doc.StorageKey)
		if err != nil {
			if errors.Is(err, object.ErrNotFound) {
				telemetry.Warn("documents.blob_missing", map[string]any{
					"document_id": doc.ID,
					"storage_key": doc.StorageKey,
				})
			}
			return nil, blobError("get", doc.StorageKey, err)
		}
		return json.Marshal(File{Bytes: data, FileName: DownloadName(doc.FileName)})
	})
	if err != nil {
		return File{}, err
	}
	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return File{}, fmt.Errorf("decode cached file %s: %w", id, err)
	}
	return file, nil
}

// SignedURL returns a time-boxed download URL for the document's blob.
func (s *Service) SignedURL(ctx context.Context, id string) (string, error) {
	doc, err := s.Find(ctx, id)
	if err != nil {
		return "", err
	}
	ttl := s.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	url, err := s.Store.SignedURL(ctx, doc.StorageKey, ttl)
	if err != nil {
		if errors.Is(err, object.ErrSigningUnsupported) {
			return "", err
		}
		return "", blobError("sign", doc.StorageKey, err)
	}
	return url, nil
}

// Update re-renders the document from values and replaces its blob and row.
//
// The row change is a compare-and-swap on UpdatedAt. When the store can overwrite, the row
// is swapped first and the blob written at the same key; a failed blob write reverts the row,
// and a blob write that lands after a newer writer's reclaims the row for the stored bytes.
// Otherwise the blob is written at a fresh key, the row swapped to it, and the old blob removed.
// A caller that loses the swap gets ErrConflict and leaves no trace.
func (s *Service) Update(ctx context.Context, id string, values map[string]any, templateName string) (Generated, error) {
	prev, err := s.Find(ctx, id)
	if err != nil {
		return Generated{}, err
	}
	resolved, err := resolveTemplate(prev.Kind, templateName)
	if err != nil {
		return Generated{}, err
	}
	if err := ValidateFormValues(prev.Kind, values); err != nil {
		return Generated{}, err
	}
	pdf, err := s.render(ctx, resolved, values)
	if err != nil {
		return Generated{}, err
	}

	next := prev
	next.FileName = DeriveFileName(prev.Kind, values)
	next.FormValues = values
	next.UpdatedAt = s.nextUpdatedAt(prev.UpdatedAt)

	if s.Store.CanOverwrite() {
		next, err = s.overwrite(ctx, prev, next, pdf)
	} else {
		next.StorageKey = fmt.Sprintf("%s/%s-%d.pdf", prev.Kind.Folder(), prev.ID, next.UpdatedAt.UnixNano())
		err = s.rotate(ctx, prev, next, pdf)
	}
	if err != nil {
		if errors.Is(err, ErrConflict) {
			metrics.IncUpdateConflict()
		}
		return Generated{}, err
	}

	s.invalidate(ctx, prev.OwnerID, prev.ID)
	telemetry.Info("documents.updated", map[string]any{
		"document_id": next.ID,
		"owner_id":    next.OwnerID,
		"storage_key": next.StorageKey,
	})
	return Generated{PDF: pdf, FileName: next.FileName, Document: &next}, nil
}

func (s *Service) overwrite(ctx context.Context, prev, next Document, pdf []byte) (Document, error) {
	if err := s.Repo.Update(ctx, next, prev.UpdatedAt); err != nil {
		return Document{}, repoError("update", prev.ID, err)
	}
	if err := s.Store.Put(ctx, next.StorageKey, pdf, pdfContentType); err != nil {
		revert := prev
		revert.UpdatedAt = s.nextUpdatedAt(next.UpdatedAt)
		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if revertErr := s.Repo.Update(revertCtx, revert, next.UpdatedAt); revertErr != nil {
			telemetry.Error("documents.update_revert_failed", map[string]any{
				"document_id": prev.ID,
				"error":       revertErr,
			})
		}
		return Document{}, blobError("put", next.StorageKey, err)
	}
	return s.settleOverwrite(ctx, next, pdf), nil
}

// settleOverwrite runs once this writer's blob has landed. If a newer row exists but the
// stored bytes are still ours, the newer writer's blob landed first and ours replaced it;
// the row is swapped back so that it describes the stored bytes. Newer bytes in the store
// mean their writer settles the row, and this one stops.
func (s *Service) settleOverwrite(ctx context.Context, mine Document, pdf []byte) Document {
	for attempt := 0; attempt < maxSettleAttempts; attempt++ {
		cur, err := s.Repo.GetByID(ctx, mine.ID)
		if err != nil || cur.UpdatedAt.Equal(mine.UpdatedAt) {
			return mine
		}
		stored, err := s.Store.Get(ctx, mine.StorageKey)
		if err != nil || !bytes.Equal(stored, pdf) {
			return mine
		}
		claim := mine
		claim.UpdatedAt = s.nextUpdatedAt(cur.UpdatedAt)
		err = s.Repo.Update(ctx, claim, cur.UpdatedAt)
		if err == nil {
			telemetry.Warn("documents.overwrite_reclaimed", map[string]any{
				"document_id":   mine.ID,
				"superseded_at": cur.UpdatedAt,
			})
			return claim
		}
		if !errors.Is(err, ErrConflict) {
			break
		}
	}
	telemetry.Error("documents.overwrite_unsettled", map[string]any{
		"document_id": mine.ID,
		"storage_key": mine.StorageKey,
	})
	return mine
}

func (s *Service) rotate(ctx context.Context, prev, next Document, pdf []byte) error {
	if err := s.Store.Put(ctx, next.StorageKey, pdf, pdfContentType); err != nil {
		return blobError("put", next.StorageKey, err)
	}
	if err := s.Repo.Update(ctx, next, prev.UpdatedAt); err != nil {
		s.deleteBlobBestEffort(ctx, next.StorageKey, "update_failed")
		return repoError("update", prev.ID, err)
	}
	s.deleteBlobBestEffort(ctx, prev.StorageKey, "rotated")
	return nil
}

// Delete removes the blob and then the row. If the blob cannot be removed the row is kept
// so that it still names a recoverable blob.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deleteDocument(ctx, doc); err != nil {
		return err
	}
	s.invalidate(ctx, doc.OwnerID, doc.ID)
	telemetry.Info("documents.deleted", map[string]any{
		"document_id": doc.ID,
		"owner_id":    doc.OwnerID,
	})
	return nil
}

func (s *Service) deleteDocument(ctx context.Context, doc Document) error {
	if err := s.Store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, object.ErrNotFound) {
		metrics.IncBlobDeleteFailed()
		telemetry.Error("documents.blob_delete_failed", map[string]any{
			"document_id": doc.ID,
			"storage_key": doc.StorageKey,
			"error":       err,
		})
		return blobError("delete", doc.StorageKey, err)
	}
	if err := s.Repo.Delete(ctx, doc.ID); err != nil {
		return repoError("delete", doc.ID, err)
	}
	return nil
}

// DeleteOwner removes every document of an owner, blob first. Documents whose blob could not
// be removed keep their rows and are counted as retained.
func (s *Service) DeleteOwner(ctx context.Context, ownerID string) (PurgeResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return PurgeResult{}, invalid("owner id is required")
	}
	docs, err := s.Repo.ListAllByOwner(ctx, ownerID)
	if err != nil {
		return PurgeResult{}, repoError("list", ownerID, err)
	}

	result := PurgeResult{Found: len(docs)}
	var errs []error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			result.Retained = result.Found - result.Deleted
			break
		}
		err := s.deleteDocument(ctx, doc)
		if err != nil && !errors.Is(err, ErrNotFound) {
			result.Retained++
			errs = append(errs, fmt.Errorf("document %s: %w", doc.ID, err))
			continue
		}
		result.Deleted++
		s.invalidate(ctx, ownerID, doc.ID)
	}

	telemetry.Info("documents.owner_purged", map[string]any{
		"owner_id": ownerID,
		"found":    result.Found,
		"deleted":  result.Deleted,
		"retained": result.Retained,
	})
	return result, errors.Join(errs...)
}

func (s *Service) render(ctx context.Context, templateName string, values map[string]any) ([]byte, error) {
	start := time.Now()
	html, err := s.Templates.Render(ctx, templateName, values)
	if err != nil {
		if errors.Is(err, render.ErrTemplateNotFound) || errors.Is(err, ErrTemplateNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateName)
		}
		return nil, fmt.Errorf("render template %s: %w", templateName, err)
	}
	pdf, err := s.PDF.Render(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, fmt.Errorf("render pdf: output is not a pdf document")
	}
	metrics.ObserveRenderDurationMs(float64(time.Since(start).Milliseconds()))
	return pdf, nil
}

func (s *Service) deleteBlobBestEffort(ctx context.Context, key, reason string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.Store.Delete(cleanupCtx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
		metrics.IncBlobDeleteFailed()
		telemetry.Warn("documents.blob_cleanup_failed", map[string]any{
			"storage_key": key,
			"reason":      reason,
			"error":       err,
		})
	}
}

func (s *Service) invalidate(ctx context.Context, ownerID, id string) {
	if !s.InvalidateOnWrite || s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, metaCacheKey(ownerID, id), fileCacheKey(ownerID, id)); err != nil {
		telemetry.Warn("documents.cache_invalidate_failed", map[string]any{
			"document_id": id,
			"error":       err,
		})
	}
}

func (s *Service) cache() cache.Cache {
	if s.Cache == nil {
		return cache.Noop{}
	}
	return s.Cache
}

func (s *Service) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return now().UTC().Truncate(time.Microsecond)
}

// nextUpdatedAt is strictly after prev at the database's microsecond precision.
func (s *Service) nextUpdatedAt(prev time.Time) time.Time {
	now := s.now()
	floor := prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func resolveTemplate(kind Kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = kind.DefaultTemplate()
	}
	if name == "" {
		return "", invalid("templateName is required")
	}
	return name, nil
}

func metaCacheKey(requesterID, id string) string {
	return "meta:" + requesterID + ":" + id
}

func fileCacheKey(requesterID, id string) string {
	return "file:" + requesterID + ":" + id
}

// blobError maps object store failures to the document error set.
func blobError(op, key string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, object.ErrNotFound):
		return fmt.Errorf("blob %s %s: %w", op, key, ErrNotFound)
	default:
		return fmt.Errorf("blob %s %s: %w: %w", op, key, ErrStoreUnavailable, err)
	}
}

// repoError passes document errors through and reports anything else as a store failure.
func repoError(op, id string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidInput):
		return err
	default:
		return fmt.Errorf("metadata %s %s: %w: %w", op, id, ErrStoreUnavailable, err)
	}
}
