// Package postgres persists fund control parameters in a singleton row.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tranche/internal/governance"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// Schema creates the governance table. Applied by migrations and by the
// integration test harness.
const Schema = `
CREATE TABLE IF NOT EXISTS fund_params (
    singleton     BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    owner_id      UUID NOT NULL,
    pending_owner UUID,
    active        BOOLEAN NOT NULL,
    issuer_id     UUID NOT NULL,
    broker_id     UUID NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Load(ctx context.Context) (governance.Params, error) {
	var (
		owner   uuid.UUID
		pending uuid.NullUUID
		active  bool
		issuer  uuid.UUID
		broker  uuid.UUID
	)
	err := s.pool.QueryRow(ctx,
		`SELECT owner_id, pending_owner, active, issuer_id, broker_id
		 FROM fund_params WHERE singleton`,
	).Scan(&owner, &pending, &active, &issuer, &broker)
	if errors.Is(err, pgx.ErrNoRows) {
		return governance.Params{}, sentinel.ErrNotFound
	}
	if err != nil {
		return governance.Params{}, err
	}

	params := governance.Params{
		Owner:  id.Identity(owner),
		Active: active,
		Issuer: id.Identity(issuer),
		Broker: id.Identity(broker),
	}
	if pending.Valid {
		params.PendingOwner = id.Identity(pending.UUID)
	}
	return params, nil
}

func (s *Store) Save(ctx context.Context, params governance.Params) error {
	var pending uuid.NullUUID
	if !params.PendingOwner.IsNil() {
		pending = uuid.NullUUID{UUID: uuid.UUID(params.PendingOwner), Valid: true}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fund_params (singleton, owner_id, pending_owner, active, issuer_id, broker_id, updated_at)
		 VALUES (TRUE, $1, $2, $3, $4, $5, now())
		 ON CONFLICT (singleton) DO UPDATE SET
		     owner_id = EXCLUDED.owner_id,
		     pending_owner = EXCLUDED.pending_owner,
		     active = EXCLUDED.active,
		     issuer_id = EXCLUDED.issuer_id,
		     broker_id = EXCLUDED.broker_id,
		     updated_at = now()`,
		uuid.UUID(params.Owner), pending, params.Active,
		uuid.UUID(params.Issuer), uuid.UUID(params.Broker),
	)
	return err
}
