//go:build integration

// Package containers manages the shared test containers for integration
// tests. Containers are started once per test binary and shared across
// suites; Ryuk reaps them when the run ends.
package containers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	authstore "tranche/internal/auth/store"
	governancepg "tranche/internal/governance/store/postgres"
	ledgerpg "tranche/internal/ledger/store/postgres"
	auditpg "tranche/pkg/platform/audit/store/postgres"
)

var (
	managerOnce sync.Once
	manager     *Manager
)

// Manager hands out shared container handles.
type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	redis    *RedisContainer
	redpanda *RedpandaContainer
}

func GetManager() *Manager {
	managerOnce.Do(func() {
		manager = &Manager{}
	})
	return manager
}

// GetPostgres returns a pooled connection to the shared Postgres container
// with the full schema applied.
func (m *Manager) GetPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.postgres == nil {
		m.postgres = NewPostgresContainer(t)
		applySchemas(t, m.postgres.Pool)
	}
	return m.postgres.Pool
}

// PostgresURL returns the connection string for stores built on
// database/sql rather than pgx.
func (m *Manager) PostgresURL(t *testing.T) string {
	t.Helper()
	m.GetPostgres(t)
	return m.postgres.URL
}

// GetRedis returns the shared Redis client.
func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redis == nil {
		m.redis = NewRedisContainer(t)
	}
	return m.redis
}

// GetRedpanda returns the shared Kafka-compatible broker.
func (m *Manager) GetRedpanda(t *testing.T) *RedpandaContainer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redpanda == nil {
		m.redpanda = NewRedpandaContainer(t)
	}
	return m.redpanda
}

// TruncateTables resets the named tables between tests.
func TruncateTables(t *testing.T, pool *pgxpool.Pool, tables ...string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
	// fund_meta is a singleton, not truncatable: reset it in place.
	if _, err := pool.Exec(ctx,
		`UPDATE fund_meta SET total_supply = 0, reserve = 0 WHERE singleton`); err != nil {
		t.Fatalf("failed to reset fund_meta: %v", err)
	}
}

func applySchemas(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	for _, schema := range []string{ledgerpg.Schema, governancepg.Schema, auditpg.Schema, authstore.Schema} {
		if _, err := pool.Exec(ctx, schema); err != nil {
			t.Fatalf("failed to apply schema: %v", err)
		}
	}
}
