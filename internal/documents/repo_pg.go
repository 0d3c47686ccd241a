package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, owner_id, kind, file_name, storage_key, form_values, created_at, updated_at`

// Insert adds a new document row.
func (r *PGRepo) Insert(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`

	values, err := encodeFormValues(doc.FormValues)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		string(doc.Kind),
		doc.FileName,
		doc.StorageKey,
		values,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return mapPGError(err)
}

// Update is a compare-and-swap on updated_at.
func (r *PGRepo) Update(ctx context.Context, doc Document, expectedUpdatedAt time.Time) error {
	const query = `
UPDATE documents
SET file_name = $1, storage_key = $2, form_values = $3::jsonb, updated_at = $4
WHERE id = $5 AND updated_at = $6`

	values, err := encodeFormValues(doc.FormValues)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query,
		doc.FileName,
		doc.StorageKey,
		values,
		doc.UpdatedAt,
		doc.ID,
		expectedUpdatedAt,
	)
	if err != nil {
		return mapPGError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// Delete removes a row.
func (r *PGRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches a row by id.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	const query = `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByOwner returns summaries filtered by kind and a case-insensitive file name match.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]Summary, error) {
	var b strings.Builder
	b.WriteString(`
SELECT id, kind, file_name, created_at, updated_at
FROM documents
WHERE owner_id = $1`)
	args := []any{ownerID}

	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		b.WriteString(` AND kind = $` + strconv.Itoa(len(args)))
	}
	if search := strings.TrimSpace(opts.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		b.WriteString(` AND file_name ILIKE $` + strconv.Itoa(len(args)) + ` ESCAPE '\'`)
	}
	b.WriteString(`
ORDER BY updated_at DESC, id`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		b.WriteString(`
LIMIT $` + strconv.Itoa(len(args)))
	}

	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Kind, &s.FileName, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListAllByOwner returns every row for an owner, newest first.
func (r *PGRepo) ListAllByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	const query = `SELECT ` + documentColumns + `
FROM documents
WHERE owner_id = $1
ORDER BY updated_at DESC, id`

	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var values []byte
	if err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Kind,
		&doc.FileName,
		&doc.StorageKey,
		&values,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return Document{}, err
	}
	if len(values) > 0 {
		if err := json.Unmarshal(values, &doc.FormValues); err != nil {
			return Document{}, fmt.Errorf("decode form_values for %s: %w", doc.ID, err)
		}
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func encodeFormValues(values map[string]any) (string, error) {
	if values == nil {
		return "{}", nil
	}
	payload, err := json.Marshal(values)
	if err != nil {
		return "", invalid(fmt.Sprintf("formValues could not be encoded: %v", err))
	}
	return string(payload), nil
}

func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return ErrUnknownOwner
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrConflict)
		}
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Repo = (*PGRepo)(nil)
