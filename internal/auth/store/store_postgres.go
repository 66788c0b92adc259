package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tranche/internal/auth"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// Schema creates the credentials table. Applied by migrations and by the
// integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS fund_credentials (
    identity    UUID PRIMARY KEY,
    secret_hash TEXT NOT NULL,
    label       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const uniqueViolation = "23505"

// Postgres persists credentials in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Create(ctx context.Context, cred *auth.Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fund_credentials (identity, secret_hash, label, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.UUID(cred.Identity), cred.SecretHash, cred.Label, cred.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sentinel.ErrConflict
	}
	return err
}

func (s *Postgres) FindByIdentity(ctx context.Context, identity id.Identity) (*auth.Credential, error) {
	cred := &auth.Credential{Identity: identity}
	err := s.pool.QueryRow(ctx,
		`SELECT secret_hash, label, created_at FROM fund_credentials WHERE identity = $1`,
		uuid.UUID(identity),
	).Scan(&cred.SecretHash, &cred.Label, &cred.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cred, nil
}
