package owners

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgForeignKeyViolation = "23503"

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Upsert(ctx context.Context, owner Owner) (Owner, error) {
	const query = `
INSERT INTO owners (id, email, full_name, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  full_name = EXCLUDED.full_name,
  updated_at = now()
RETURNING created_at, updated_at`
	err := r.DB.QueryRowContext(ctx, query,
		owner.ID,
		nullableString(owner.Email),
		nullableString(owner.FullName),
	).Scan(&owner.CreatedAt, &owner.UpdatedAt)
	if err != nil {
		return Owner{}, fmt.Errorf("upsert owner %s: %w", owner.ID, err)
	}
	return owner, nil
}

func (r *PGRepo) GetByID(ctx context.Context, ownerID string) (Owner, error) {
	const query = `
SELECT id, email, full_name, created_at, updated_at
FROM owners
WHERE id = $1
LIMIT 1`
	var owner Owner
	var email sql.NullString
	var fullName sql.NullString
	err := r.DB.QueryRowContext(ctx, query, ownerID).Scan(
		&owner.ID,
		&email,
		&fullName,
		&owner.CreatedAt,
		&owner.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Owner{}, ErrNotFound
		}
		return Owner{}, err
	}
	owner.Email = email.String
	owner.FullName = fullName.String
	return owner, nil
}

func (r *PGRepo) Exists(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM owners WHERE id = $1)`, ownerID).Scan(&exists)
	return exists, err
}

func (r *PGRepo) Delete(ctx context.Context, ownerID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM owners WHERE id = $1`, ownerID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrHasDocuments
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
