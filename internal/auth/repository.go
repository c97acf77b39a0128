package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Repository is the Postgres-backed credential store.
type Repository struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *Repository) FindIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	query, args, err := r.qb.
		Select("id", "username", "password_hash", "created_at", "updated_at").
		From("users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return Identity{}, fmt.Errorf("build identity query: %w", err)
	}

	var identity Identity
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&identity.ID, &identity.Username, &identity.PasswordHash, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("query identity by username: %w", err)
	}

	return identity, nil
}

// UpsertIdentity creates username or replaces its password hash.
func (r *Repository) UpsertIdentity(ctx context.Context, username, passwordHash string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	query, args, err := r.qb.
		Insert("users").
		Columns("id", "username", "password_hash", "created_at", "updated_at").
		Values(id.String(), username, passwordHash, now, now).
		Suffix(`ON CONFLICT (username) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert identity: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
