package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cvcreator-backend/internal/shared/cache"
	"cvcreator-backend/internal/shared/storage/object"
)

func TestGenerateReturnsPDFWithoutOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	out, err := f.svc.Generate(context.Background(), GenerateRequest{
		Kind:         KindResume,
		TemplateName: "modern",
		FormValues:   resumeValues("John Doe"),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.HasPrefix(out.PDF, []byte("%PDF-")) {
		t.Fatalf("expected pdf magic header, got %q", out.PDF[:8])
	}
	if out.Document != nil {
		t.Fatalf("expected no document without owner")
	}
	if f.store.count() != 0 {
		t.Fatalf("expected nothing stored, got %d objects", f.store.count())
	}
	if out.FileName != "John Doe" {
		t.Fatalf("unexpected file name %q", out.FileName)
	}
}

func TestGeneratePersistsForOwner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		kind     Kind
		template string
		values   map[string]any
		wantName string
	}{
		{name: "trimmed resume name", kind: KindResume, template: "modern", values: resumeValues(" John Doe "), wantName: "John Doe"},
		{name: "blank resume name", kind: KindResume, template: "modern", values: resumeValues(""), wantName: "resume"},
		{name: "blank cover letter name", kind: KindCoverLetter, values: coverLetterValues("   "), wantName: "coverletter"},
		{name: "cover letter name", kind: KindCoverLetter, values: coverLetterValues("Ayşe Yılmaz"), wantName: "Ayşe Yılmaz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, true)
			ctx := context.Background()

			doc := mustGenerate(t, f.svc, GenerateRequest{Kind: tt.kind, TemplateName: tt.template, FormValues: tt.values, OwnerID: "owner-a"})

			found, err := f.svc.Find(ctx, doc.ID)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if found.OwnerID != "owner-a" {
				t.Fatalf("OwnerID = %q", found.OwnerID)
			}
			if found.FileName != tt.wantName {
				t.Fatalf("FileName = %q, want %q", found.FileName, tt.wantName)
			}
			if !found.CreatedAt.Equal(found.UpdatedAt) {
				t.Fatalf("expected CreatedAt == UpdatedAt on create")
			}
			wantKey := tt.kind.Folder() + "/" + doc.ID + ".pdf"
			if found.StorageKey != wantKey || !f.store.has(wantKey) {
				t.Fatalf("expected blob at %s, row key %s", wantKey, found.StorageKey)
			}
		})
	}
}

func TestGenerateValidatesBeforeSideEffects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  GenerateRequest
		want error
	}{
		{
			name: "unknown kind",
			req:  GenerateRequest{Kind: "invoice", TemplateName: "modern", FormValues: resumeValues("A")},
			want: ErrInvalidInput,
		},
		{
			name: "resume without template",
			req:  GenerateRequest{Kind: KindResume, FormValues: resumeValues("A")},
			want: ErrInvalidInput,
		},
		{
			name: "missing personal info",
			req:  GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: map[string]any{"skillsInfo": []any{}}},
			want: ErrInvalidInput,
		},
		{
			name: "skill without title",
			req: GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: map[string]any{
				"personalInfo": map[string]any{"fullName": "A"},
				"skillsInfo":   []any{map[string]any{"scale": "5"}},
			}},
			want: ErrInvalidInput,
		},
		{
			name: "cover letter missing content",
			req: GenerateRequest{Kind: KindCoverLetter, FormValues: map[string]any{
				"senderInfo": map[string]any{"fullName": "A"},
			}},
			want: ErrInvalidInput,
		},
		{
			name: "nil form values",
			req:  GenerateRequest{Kind: KindResume, TemplateName: "modern"},
			want: ErrInvalidInput,
		},
		{
			name: "unknown template",
			req:  GenerateRequest{Kind: KindResume, TemplateName: "classic", FormValues: resumeValues("A")},
			want: ErrTemplateNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, true)
			tt.req.OwnerID = "owner-a"

			_, err := f.svc.Generate(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if f.store.count() != 0 {
				t.Fatalf("expected no blob writes")
			}
			items, _ := f.repo.ListByOwner(context.Background(), "owner-a", ListOptions{})
			if len(items) != 0 {
				t.Fatalf("expected no rows, got %d", len(items))
			}
		})
	}
}

func TestGenerateValidationErrorCarriesProblems(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	_, err := f.svc.Generate(context.Background(), GenerateRequest{
		Kind:       KindCoverLetter,
		FormValues: map[string]any{"senderInfo": map[string]any{"fullName": "A"}},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) == 0 {
		t.Fatalf("expected problems listed")
	}
}

func TestGenerateReturnsBytesWhenPersistenceFails(t *testing.T) {
	t.Parallel()

	t.Run("blob write fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, true)
		f.store.fail(fmt.Errorf("put: %w", object.ErrUnavailable), nil, nil)

		out, err := f.svc.Generate(context.Background(), GenerateRequest{
			Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a",
		})
		if err != nil {
			t.Fatalf("Generate should not fail: %v", err)
		}
		if len(out.PDF) == 0 || out.Document != nil {
			t.Fatalf("expected bytes and no document, got doc=%v", out.Document)
		}
		items, _ := f.svc.List(context.Background(), "owner-a", ListOptions{})
		if len(items) != 0 {
			t.Fatalf("expected no rows after failed blob write")
		}
	})

	t.Run("insert fails removes blob", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, true)
		f.repo.owners = staticOwners{"owner-a": true}

		out, err := f.svc.Generate(context.Background(), GenerateRequest{
			Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "ghost",
		})
		if err != nil {
			t.Fatalf("Generate should not fail: %v", err)
		}
		if len(out.PDF) == 0 || out.Document != nil {
			t.Fatalf("expected bytes and no document")
		}
		if f.store.count() != 0 {
			t.Fatalf("expected orphan blob to be cleaned up, %d remain", f.store.count())
		}
	})
}

func TestUpdateThenDownloadServesNewBytes(t *testing.T) {
	t.Parallel()
	for _, overwrite := range []bool{true, false} {
		t.Run(fmt.Sprintf("overwrite=%v", overwrite), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, overwrite)
			ctx := context.Background()
			doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Version One"), OwnerID: "owner-a"})

			out, err := f.svc.Update(ctx, doc.ID, resumeValues("Version Two"), "modern")
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if out.FileName != "Version Two" {
				t.Fatalf("unexpected file name %q", out.FileName)
			}

			file, err := f.svc.Download(ctx, doc.ID, "owner-a")
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			if !bytes.Contains(file.Bytes, []byte("Version Two")) || bytes.Contains(file.Bytes, []byte("Version One")) {
				t.Fatalf("download served stale bytes: %q", file.Bytes)
			}
			if file.FileName != "Version Two.pdf" {
				t.Fatalf("unexpected download name %q", file.FileName)
			}

			found, err := f.svc.Find(ctx, doc.ID)
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if !found.UpdatedAt.After(doc.UpdatedAt) {
				t.Fatalf("UpdatedAt did not increase: %v -> %v", doc.UpdatedAt, found.UpdatedAt)
			}
			if found.OwnerID != "owner-a" || !found.CreatedAt.Equal(doc.CreatedAt) {
				t.Fatalf("owner or creation time changed: %+v", found)
			}
			if overwrite && found.StorageKey != doc.StorageKey {
				t.Fatalf("overwrite backend should keep key, got %s", found.StorageKey)
			}
			if !overwrite {
				if found.StorageKey == doc.StorageKey {
					t.Fatalf("rotating backend should change key")
				}
				if f.store.has(doc.StorageKey) {
					t.Fatalf("old blob should be removed after rotation")
				}
				if f.store.count() != 1 {
					t.Fatalf("expected exactly one blob, got %d", f.store.count())
				}
			}
		})
	}
}

func TestUpdateValidatesBeforeWriting(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})
	puts := f.store.puts

	if _, err := f.svc.Update(ctx, doc.ID, map[string]any{}, "modern"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.svc.Update(ctx, doc.ID, resumeValues("B"), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing template, got %v", err)
	}
	if _, err := f.svc.Update(ctx, doc.ID, resumeValues("B"), "classic"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	if _, err := f.svc.Update(ctx, "missing", resumeValues("B"), "modern"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	found, _ := f.svc.Find(ctx, doc.ID)
	if found.FileName != "A" || !found.UpdatedAt.Equal(doc.UpdatedAt) || f.store.puts != puts {
		t.Fatalf("document changed by rejected updates")
	}
}

func TestUpdateUpdatedAtStrictlyIncreasesWithFrozenClock(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.Now = func() time.Time { return frozen }
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})

	last := doc.UpdatedAt
	for i := 0; i < 3; i++ {
		out, err := f.svc.Update(ctx, doc.ID, resumeValues(fmt.Sprintf("A%d", i)), "modern")
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !out.Document.UpdatedAt.After(last) {
			t.Fatalf("UpdatedAt %v not after %v", out.Document.UpdatedAt, last)
		}
		last = out.Document.UpdatedAt
	}
}

// racingRepo lets another writer update the row just before the caller's swap.
type racingRepo struct {
	*MemoryRepo
	race func()
}

func (r *racingRepo) Update(ctx context.Context, doc Document, expected time.Time) error {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.MemoryRepo.Update(ctx, doc, expected)
}

func TestUpdateLoserOfSwapWritesNothing(t *testing.T) {
	t.Parallel()
	for _, overwrite := range []bool{true, false} {
		t.Run(fmt.Sprintf("overwrite=%v", overwrite), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, overwrite)
			ctx := context.Background()
			doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Original"), OwnerID: "owner-a"})

			racing := &racingRepo{MemoryRepo: f.repo}
			racing.race = func() {
				winner := doc
				winner.FileName = "Winner"
				winner.UpdatedAt = doc.UpdatedAt.Add(time.Millisecond)
				if err := f.repo.Update(ctx, winner, doc.UpdatedAt); err != nil {
					t.Errorf("winner update: %v", err)
				}
			}
			f.svc.Repo = racing
			blobBefore, _ := f.store.Get(ctx, doc.StorageKey)

			_, err := f.svc.Update(ctx, doc.ID, resumeValues("Loser"), "modern")
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}

			found, _ := f.repo.GetByID(ctx, doc.ID)
			if found.FileName != "Winner" {
				t.Fatalf("loser overwrote row: %q", found.FileName)
			}
			blobAfter, err := f.store.Get(ctx, doc.StorageKey)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(blobBefore, blobAfter) {
				t.Fatalf("loser changed the blob")
			}
			if f.store.count() != 1 {
				t.Fatalf("loser left extra blobs: %d", f.store.count())
			}
		})
	}
}

func TestUpdateRevertsRowWhenBlobWriteFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Original"), OwnerID: "owner-a"})
	f.store.fail(fmt.Errorf("put: %w", object.ErrUnavailable), nil, nil)

	_, err := f.svc.Update(ctx, doc.ID, resumeValues("Changed"), "modern")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	found, err := f.svc.Find(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.FileName != "Original" {
		t.Fatalf("row not reverted: %q", found.FileName)
	}
	if DeriveFileName(KindResume, found.FormValues) != "Original" {
		t.Fatalf("form values not reverted: %v", found.FormValues)
	}
	if !found.UpdatedAt.After(doc.UpdatedAt) {
		t.Fatalf("UpdatedAt should still move forward after revert")
	}
}

// latePutStore runs each hook once around the next Put, to let another writer run in between.
type latePutStore struct {
	*memStore
	beforePut func()
	afterPut  func()
}

func (s *latePutStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if hook := s.beforePut; hook != nil {
		s.beforePut = nil
		hook()
	}
	if err := s.memStore.Put(ctx, key, data, contentType); err != nil {
		return err
	}
	if hook := s.afterPut; hook != nil {
		s.afterPut = nil
		hook()
	}
	return nil
}

func TestUpdateBlobLandingAfterNewerWriterReclaimsRow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Original"), OwnerID: "owner-a"})

	late := &latePutStore{memStore: f.store}
	late.beforePut = func() {
		if _, err := f.svc.Update(ctx, doc.ID, resumeValues("Faster"), "modern"); err != nil {
			t.Errorf("faster update: %v", err)
		}
	}
	f.svc.Store = late

	out, err := f.svc.Update(ctx, doc.ID, resumeValues("Slower"), "modern")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, err := f.repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	blob, err := f.store.Get(ctx, doc.StorageKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found.FileName != "Slower" || !bytes.Contains(blob, []byte("Slower")) {
		t.Fatalf("row %q does not describe stored bytes %q", found.FileName, blob)
	}
	if !found.UpdatedAt.Equal(out.Document.UpdatedAt) {
		t.Fatalf("returned UpdatedAt %v, row has %v", out.Document.UpdatedAt, found.UpdatedAt)
	}
}

func TestUpdateBlobOvertakenByNewerWriterLeavesNewerRow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Original"), OwnerID: "owner-a"})

	late := &latePutStore{memStore: f.store}
	late.afterPut = func() {
		if _, err := f.svc.Update(ctx, doc.ID, resumeValues("Newer"), "modern"); err != nil {
			t.Errorf("newer update: %v", err)
		}
	}
	f.svc.Store = late

	if _, err := f.svc.Update(ctx, doc.ID, resumeValues("Older"), "modern"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	found, _ := f.repo.GetByID(ctx, doc.ID)
	blob, _ := f.store.Get(ctx, doc.StorageKey)
	if found.FileName != "Newer" || !bytes.Contains(blob, []byte("Newer")) {
		t.Fatalf("expected the newer update to stand, row %q blob %q", found.FileName, blob)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})

	if err := f.svc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if _, err := f.svc.Find(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete should report ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Find(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.store.has(doc.StorageKey) {
		t.Fatalf("blob should be gone")
	}
}

func TestDeleteWithMissingBlobRemovesRow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})
	_ = f.store.Delete(ctx, doc.StorageKey)

	if err := f.svc.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Find(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected row removed, got %v", err)
	}
}

func TestDeleteKeepsRowWhenBlobDeleteFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})
	f.store.fail(nil, nil, fmt.Errorf("delete: %w", object.ErrUnavailable))

	if err := f.svc.Delete(ctx, doc.ID); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := f.svc.Find(ctx, doc.ID); err != nil {
		t.Fatalf("row must survive failed blob delete: %v", err)
	}
}

func TestListFiltersAndLimits(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()

	for _, name := range []string{"Ali Veli", "Ayşe Yılmaz", "Mehmet Kaya"} {
		mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues(name), OwnerID: "owner-a"})
	}
	mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Ali Other"), OwnerID: "owner-b"})

	got, err := f.svc.List(ctx, "owner-a", ListOptions{Search: "ali"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].FileName != "Ali Veli" {
		t.Fatalf("expected only Ali Veli, got %+v", got)
	}

	got, err = f.svc.List(ctx, "owner-a", ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].FileName != "Mehmet Kaya" || got[1].FileName != "Ayşe Yılmaz" {
		t.Fatalf("expected newest first, got %s, %s", got[0].FileName, got[1].FileName)
	}
	if got[0].UpdatedAt.Before(got[1].UpdatedAt) {
		t.Fatalf("rows not ordered by UpdatedAt desc")
	}

	got, err = f.svc.List(ctx, "owner-a", ListOptions{Kind: KindCoverLetter})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no cover letters, got %d", len(got))
	}

	if _, err := f.svc.List(ctx, " ", ListOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank owner, got %v", err)
	}
}

func TestListOrderFollowsUpdates(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	first := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("First"), OwnerID: "owner-a"})
	mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Second"), OwnerID: "owner-a"})

	if _, err := f.svc.Update(ctx, first.ID, resumeValues("First Edited"), "modern"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := f.svc.List(ctx, "owner-a", ListOptions{})
	if len(got) != 2 || got[0].ID != first.ID {
		t.Fatalf("expected updated document first, got %+v", got)
	}
}

func TestDownloadAccessControl(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.svc.Cache = cache.NewMemory()
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})

	for i := 0; i < 2; i++ {
		file, err := f.svc.Download(ctx, doc.ID, "owner-b")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if len(file.Bytes) != 0 {
			t.Fatalf("forbidden download served bytes")
		}
	}
	if _, err := f.svc.FindForRequester(ctx, "owner-b", doc.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Download(ctx, "missing", "owner-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Download(ctx, doc.ID, "owner-a"); err != nil {
		t.Fatalf("owner Download: %v", err)
	}
}

func TestDownloadMissingBlobIsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})
	_ = f.store.Delete(ctx, doc.StorageKey)

	if _, err := f.svc.Download(ctx, doc.ID, "owner-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownloadStoreFailureIsUnavailableAndNotCached(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.svc.Cache = cache.NewMemory()
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})

	f.store.fail(nil, fmt.Errorf("get: %w", object.ErrUnavailable), nil)
	if _, err := f.svc.Download(ctx, doc.ID, "owner-a"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	f.store.fail(nil, nil, nil)
	if _, err := f.svc.Download(ctx, doc.ID, "owner-a"); err != nil {
		t.Fatalf("Download after recovery: %v", err)
	}
}

func TestDownloadAfterRotationIgnoresCachedMetadata(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	f.svc.Cache = cache.NewMemory()
	f.svc.CachePolicy = cache.DefaultPolicy()
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Version One"), OwnerID: "owner-a"})

	if _, err := f.svc.FindForRequester(ctx, "owner-a", doc.ID); err != nil {
		t.Fatalf("FindForRequester: %v", err)
	}
	if _, err := f.svc.Update(ctx, doc.ID, resumeValues("Version Two"), "modern"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f.store.has(doc.StorageKey) {
		t.Fatalf("rotation should have removed %s", doc.StorageKey)
	}

	file, err := f.svc.Download(ctx, doc.ID, "owner-a")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Contains(file.Bytes, []byte("Version Two")) {
		t.Fatalf("expected rotated bytes, got %q", file.Bytes)
	}
	if _, err := f.svc.Download(ctx, doc.ID, "owner-b"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another owner, got %v", err)
	}
}

func TestCacheStalenessAndInvalidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		invalidate bool
		wantFresh  bool
	}{
		{name: "baseline serves cached bytes until ttl", invalidate: false, wantFresh: false},
		{name: "invalidate on write", invalidate: true, wantFresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, true)
			f.svc.Cache = cache.NewMemory()
			f.svc.CachePolicy = cache.DefaultPolicy()
			f.svc.InvalidateOnWrite = tt.invalidate
			ctx := context.Background()
			doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Old Name"), OwnerID: "owner-a"})

			if _, err := f.svc.Download(ctx, doc.ID, "owner-a"); err != nil {
				t.Fatalf("Download: %v", err)
			}
			if _, err := f.svc.Update(ctx, doc.ID, resumeValues("New Name"), "modern"); err != nil {
				t.Fatalf("Update: %v", err)
			}
			file, err := f.svc.Download(ctx, doc.ID, "owner-a")
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			fresh := bytes.Contains(file.Bytes, []byte("New Name"))
			if fresh != tt.wantFresh {
				t.Fatalf("fresh = %v, want %v", fresh, tt.wantFresh)
			}

			if err := f.svc.Delete(ctx, doc.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			_, err = f.svc.FindForRequester(ctx, "owner-a", doc.ID)
			if tt.invalidate && !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after invalidating delete, got %v", err)
			}
		})
	}
}

func TestSignedURL(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.svc.SignedURLTTL = 90 * time.Second
	ctx := context.Background()
	doc := mustGenerate(t, f.svc, GenerateRequest{Kind: KindCoverLetter, FormValues: coverLetterValues("A"), OwnerID: "owner-a"})

	url, err := f.svc.SignedURL(ctx, doc.ID)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.Contains(url, doc.StorageKey) || !strings.Contains(url, "expires=90") {
		t.Fatalf("unexpected url %q", url)
	}

	if _, err := f.svc.SignedURL(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = f.store.Delete(ctx, doc.StorageKey)
	if _, err := f.svc.SignedURL(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing blob, got %v", err)
	}
}

func TestDeleteOwnerCascade(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ctx := context.Background()

	var docs []Document
	for _, name := range []string{"One", "Two", "Three"} {
		docs = append(docs, mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues(name), OwnerID: "owner-a"}))
	}
	other := mustGenerate(t, f.svc, GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("Other"), OwnerID: "owner-b"})

	failing := &failOnKeyStore{memStore: f.store, failKey: docs[1].StorageKey}
	f.svc.Store = failing

	result, err := f.svc.DeleteOwner(ctx, "owner-a")
	if err == nil {
		t.Fatalf("expected joined error for the failed blob")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable in joined error, got %v", err)
	}
	if result.Found != 3 || result.Deleted != 2 || result.Retained != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := f.svc.Find(ctx, docs[1].ID); err != nil {
		t.Fatalf("document with failed blob delete should keep its row: %v", err)
	}
	if _, err := f.svc.Find(ctx, other.ID); err != nil {
		t.Fatalf("other owner's document affected: %v", err)
	}

	failing.failKey = ""
	result, err = f.svc.DeleteOwner(ctx, "owner-a")
	if err != nil {
		t.Fatalf("second DeleteOwner: %v", err)
	}
	if result.Found != 1 || result.Deleted != 1 {
		t.Fatalf("unexpected second result %+v", result)
	}
}

type failOnKeyStore struct {
	*memStore
	failKey string
}

func (s *failOnKeyStore) Delete(ctx context.Context, key string) error {
	if key == s.failKey {
		return fmt.Errorf("delete %s: %w", key, object.ErrUnavailable)
	}
	return s.memStore.Delete(ctx, key)
}

func TestRenderRejectsNonPDFOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.svc.PDF = htmlEcho{}

	_, err := f.svc.Generate(context.Background(), GenerateRequest{Kind: KindResume, TemplateName: "modern", FormValues: resumeValues("A"), OwnerID: "owner-a"})
	if err == nil || errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected renderer failure, got %v", err)
	}
	if f.store.count() != 0 {
		t.Fatalf("nothing should be stored")
	}
}

type htmlEcho struct{}

func (htmlEcho) Render(_ context.Context, html string) ([]byte, error) { return []byte(html), nil }

func TestRepoErrorsBecomeStoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	f.svc.Repo = brokenRepo{}

	if _, err := f.svc.Find(context.Background(), "doc-1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := f.svc.List(context.Background(), "owner-a", ListOptions{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

type brokenRepo struct{ Repo }

func (brokenRepo) GetByID(context.Context, string) (Document, error) { return Document{}, errBackend }

func (brokenRepo) ListByOwner(context.Context, string, ListOptions) ([]Summary, error) {
	return nil, errBackend
}
