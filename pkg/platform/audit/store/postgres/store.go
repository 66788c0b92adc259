// Package postgres persists the audit trail in PostgreSQL via database/sql
// and the lib/pq driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "tranche/pkg/domain"
	audit "tranche/pkg/platform/audit"
)

// Schema is the DDL for the audit trail table. Applied by deployment
// migrations and by the integration test container manager.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor       UUID,
	subject     UUID,
	from_id     UUID,
	to_id       UUID,
	action      TEXT NOT NULL,
	amount      BIGINT NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	device      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_subject_idx ON audit_events (subject, occurred_at);
`

// Store implements audit.Store on PostgreSQL. The trail is append-only;
// there is no update or delete path by design of the table grants.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO audit_events
			(id, category, occurred_at, actor, subject, from_id, to_id, action, amount, reason, request_id, device)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		nullableIdentity(event.Actor),
		nullableIdentity(event.Subject),
		nullableIdentity(event.From),
		nullableIdentity(event.To),
		string(event.Action),
		int64(event.Amount),
		event.Reason,
		event.RequestID,
		event.Device,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("duplicate audit event %s: %w", event.ID, err)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subject id.Identity) ([]audit.Event, error) {
	query := `
		SELECT id, category, occurred_at, actor, subject, from_id, to_id, action, amount, reason, request_id, device
		FROM audit_events
		WHERE subject = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(subject))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// ListRecent returns the most recent N events, newest last.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT id, category, occurred_at, actor, subject, from_id, to_id, action, amount, reason, request_id, device
		FROM (
			SELECT * FROM audit_events ORDER BY occurred_at DESC LIMIT $1
		) recent
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		event    audit.Event
		category string
		action   string
		amount   int64
		actor    uuid.NullUUID
		subject  uuid.NullUUID
		fromID   uuid.NullUUID
		toID     uuid.NullUUID
	)
	err := rows.Scan(&event.ID, &category, &event.Timestamp, &actor, &subject,
		&fromID, &toID, &action, &amount, &event.Reason, &event.RequestID, &event.Device)
	if err != nil {
		return audit.Event{}, fmt.Errorf("scan audit event: %w", err)
	}
	event.Category = audit.EventCategory(category)
	event.Action = audit.Action(action)
	event.Amount = uint64(amount)
	event.Actor = id.Identity(actor.UUID)
	event.Subject = id.Identity(subject.UUID)
	event.From = id.Identity(fromID.UUID)
	event.To = id.Identity(toID.UUID)
	return event, nil
}

func nullableIdentity(identity id.Identity) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(identity), Valid: !identity.IsNil()}
}
