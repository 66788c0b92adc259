// Package postgres persists the ledger in three tables committed as one
// serializable transaction per operation.
package postgres

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tranche/internal/ledger"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// Schema creates the ledger tables. Applied by migrations and by the
// integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS fund_meta (
    singleton    BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    total_supply BIGINT NOT NULL DEFAULT 0 CHECK (total_supply >= 0),
    reserve      BIGINT NOT NULL DEFAULT 0 CHECK (reserve >= 0)
);

CREATE TABLE IF NOT EXISTS fund_balances (
    holder_id UUID PRIMARY KEY,
    balance   BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS fund_holders (
    position  BIGSERIAL PRIMARY KEY,
    holder_id UUID NOT NULL UNIQUE
);

INSERT INTO fund_meta (singleton) VALUES (TRUE) ON CONFLICT DO NOTHING;
`

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Atomically runs fn inside a serializable transaction.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgxTx.Rollback(ctx) }()

	if err := fn(ctx, &tx{tx: pgxTx}); err != nil {
		return err
	}
	return pgxTx.Commit(ctx)
}

type tx struct {
	tx pgx.Tx
}

// toBigint rejects values the BIGINT columns cannot hold. The ledger's
// checked arithmetic keeps real funds far below this bound.
func toBigint(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, dErrors.Newf(dErrors.CodeInvariantViolation, "value %d exceeds storage range", v)
	}
	return int64(v), nil
}

func (t *tx) Balance(ctx context.Context, holder id.Identity) (uint64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx,
		`SELECT balance FROM fund_balances WHERE holder_id = $1`,
		uuid.UUID(holder),
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func (t *tx) SetBalance(ctx context.Context, holder id.Identity, balance uint64) error {
	stored, err := toBigint(balance)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO fund_balances (holder_id, balance) VALUES ($1, $2)
		 ON CONFLICT (holder_id) DO UPDATE SET balance = EXCLUDED.balance`,
		uuid.UUID(holder), stored,
	)
	return err
}

func (t *tx) TotalSupply(ctx context.Context) (uint64, error) {
	var supply int64
	err := t.tx.QueryRow(ctx, `SELECT total_supply FROM fund_meta WHERE singleton`).Scan(&supply)
	if err != nil {
		return 0, err
	}
	return uint64(supply), nil
}

func (t *tx) SetTotalSupply(ctx context.Context, supply uint64) error {
	stored, err := toBigint(supply)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE fund_meta SET total_supply = $1 WHERE singleton`, stored)
	return err
}

func (t *tx) Reserve(ctx context.Context) (uint64, error) {
	var reserve int64
	err := t.tx.QueryRow(ctx, `SELECT reserve FROM fund_meta WHERE singleton`).Scan(&reserve)
	if err != nil {
		return 0, err
	}
	return uint64(reserve), nil
}

func (t *tx) SetReserve(ctx context.Context, reserve uint64) error {
	stored, err := toBigint(reserve)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE fund_meta SET reserve = $1 WHERE singleton`, stored)
	return err
}

func (t *tx) Holders(ctx context.Context) ([]id.Identity, error) {
	rows, err := t.tx.Query(ctx, `SELECT holder_id FROM fund_holders ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holders []id.Identity
	for rows.Next() {
		var holder uuid.UUID
		if err := rows.Scan(&holder); err != nil {
			return nil, err
		}
		holders = append(holders, id.Identity(holder))
	}
	return holders, rows.Err()
}

func (t *tx) HasHolder(ctx context.Context, holder id.Identity) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fund_holders WHERE holder_id = $1)`,
		uuid.UUID(holder),
	).Scan(&exists)
	return exists, err
}

func (t *tx) AppendHolder(ctx context.Context, holder id.Identity) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO fund_holders (holder_id) VALUES ($1)`,
		uuid.UUID(holder),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return dErrors.Newf(dErrors.CodeConflict, "holder %s already registered", holder)
	}
	return err
}
