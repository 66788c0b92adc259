//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranche/internal/auth"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/testutil/containers"
)

func setup(t *testing.T) *Postgres {
	t.Helper()
	pool := containers.GetManager().GetPostgres(t)
	containers.TruncateTables(t, pool, "fund_credentials")
	return NewPostgres(pool)
}

func TestCreateAndFind(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	cred := &auth.Credential{
		Identity:   id.NewIdentity(),
		SecretHash: "$2a$10$fakehashfortesting",
		Label:      "owner",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Create(ctx, cred))

	got, err := store.FindByIdentity(ctx, cred.Identity)
	require.NoError(t, err)
	assert.Equal(t, cred.SecretHash, got.SecretHash)
	assert.Equal(t, cred.Label, got.Label)
	assert.WithinDuration(t, cred.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestCreate_DuplicateIdentityConflicts(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	cred := &auth.Credential{
		Identity:   id.NewIdentity(),
		SecretHash: "hash-one",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.Create(ctx, cred))

	err := store.Create(ctx, &auth.Credential{
		Identity:   cred.Identity,
		SecretHash: "hash-two",
		CreatedAt:  time.Now(),
	})
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestFindByIdentity_Unknown(t *testing.T) {
	store := setup(t)

	_, err := store.FindByIdentity(context.Background(), id.NewIdentity())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
