//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranche/internal/governance"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
	"tranche/pkg/testutil/containers"
)

func setup(t *testing.T) *Store {
	t.Helper()
	pool := containers.GetManager().GetPostgres(t)
	containers.TruncateTables(t, pool, "fund_params")
	return New(pool)
}

func TestLoad_EmptyStoreIsNotFound(t *testing.T) {
	store := setup(t)

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSaveThenLoad(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	params := governance.Params{
		Owner:  id.NewIdentity(),
		Active: true,
		Issuer: id.NewIdentity(),
		Broker: id.NewIdentity(),
	}
	require.NoError(t, store.Save(ctx, params))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, got)
	assert.True(t, got.PendingOwner.IsNil())
}

func TestSave_UpsertsSingletonRow(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	params := governance.Params{
		Owner:  id.NewIdentity(),
		Active: true,
		Issuer: id.NewIdentity(),
		Broker: id.NewIdentity(),
	}
	require.NoError(t, store.Save(ctx, params))

	params.PendingOwner = id.NewIdentity()
	params.Active = false
	require.NoError(t, store.Save(ctx, params))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, got)

	params.Owner = params.PendingOwner
	params.PendingOwner = id.NilIdentity
	require.NoError(t, store.Save(ctx, params))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, got)
	assert.True(t, got.PendingOwner.IsNil(), "cleared pending owner must round-trip as nil")
}
