package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranche/internal/ledger"
	"tranche/internal/ledger/store/memory"
	"tranche/internal/platform/logger"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/requestcontext"
)

type stubGuard struct {
	active bool
	issuer id.Identity
	broker id.Identity
	owner  id.Identity
}

func (g *stubGuard) IsActive(context.Context) (bool, error)      { return g.active, nil }
func (g *stubGuard) Issuer(context.Context) (id.Identity, error) { return g.issuer, nil }
func (g *stubGuard) Broker(context.Context) (id.Identity, error) { return g.broker, nil }
func (g *stubGuard) RequireOwner(_ context.Context, caller id.Identity) error {
	if caller != g.owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund owner")
	}
	return nil
}

type env struct {
	router chi.Router
	guard  *stubGuard
}

func newEnv(t *testing.T) *env {
	t.Helper()
	guard := &stubGuard{
		active: true,
		issuer: id.NewIdentity(),
		broker: id.NewIdentity(),
		owner:  id.NewIdentity(),
	}
	svc, err := ledger.New(memory.New(), guard, 20, id.NewIdentity())
	require.NoError(t, err)

	router := chi.NewRouter()
	New(svc, logger.New()).Register(router)
	return &env{router: router, guard: guard}
}

func (e *env) do(t *testing.T, caller id.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(requestcontext.WithCaller(req.Context(), caller))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestMintEndpoint(t *testing.T) {
	e := newEnv(t)
	investor := id.NewIdentity()

	rec := e.do(t, e.guard.issuer, http.MethodPost, "/fund/mint", map[string]any{
		"recipient": investor.String(),
		"amount":    100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Minted    uint64 `json:"minted"`
		FeeShares uint64 `json:"fee_shares"`
		Supply    uint64 `json:"supply"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(100), resp.Minted)
	assert.Equal(t, uint64(25), resp.FeeShares)
	assert.Equal(t, uint64(125), resp.Supply)

	rec = e.do(t, e.guard.issuer, http.MethodGet, fmt.Sprintf("/fund/balance/%s", investor), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, uint64(100), balance.Balance)
}

func TestMintEndpoint_NonIssuerUnauthorized(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, id.NewIdentity(), http.MethodPost, "/fund/mint", map[string]any{
		"recipient": id.NewIdentity().String(),
		"amount":    100,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDirectTransferEndpoint_AlwaysForbidden(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, e.guard.owner, http.MethodPost, "/fund/transfer", map[string]any{
		"to":     id.NewIdentity().String(),
		"amount": 10,
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "operation_disabled", body.Code)
}

func TestBrokeredTransferEndpoint(t *testing.T) {
	e := newEnv(t)
	from := id.NewIdentity()
	to := id.NewIdentity()

	rec := e.do(t, e.guard.issuer, http.MethodPost, "/fund/mint", map[string]any{
		"recipient": from.String(),
		"amount":    100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, e.guard.broker, http.MethodPost, "/fund/transfer/brokered", map[string]any{
		"from":   from.String(),
		"to":     to.String(),
		"amount": 40,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, e.guard.broker, http.MethodPost, "/fund/transfer/brokered", map[string]any{
		"from":   from.String(),
		"to":     to.String(),
		"amount": 1000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "insufficient balance maps to 422")
}

func TestRedeemEndpoint(t *testing.T) {
	e := newEnv(t)
	holder := id.NewIdentity()

	rec := e.do(t, e.guard.issuer, http.MethodPost, "/fund/mint", map[string]any{
		"recipient": holder.String(),
		"amount":    800,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, e.guard.owner, http.MethodPost, "/fund/reserve/deposit", map[string]any{
		"amount": 500,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The authenticated caller redeems its own position.
	rec = e.do(t, holder, http.MethodPost, "/fund/redeem", map[string]any{
		"shares": 100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Payout  uint64 `json:"payout"`
		Supply  uint64 `json:"supply"`
		Reserve uint64 `json:"reserve"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(50), resp.Payout)
	assert.Equal(t, uint64(900), resp.Supply)
	assert.Equal(t, uint64(450), resp.Reserve)
}

func TestDistributeEndpoint_InvalidPercent(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, e.guard.owner, http.MethodPost, "/fund/distribute", map[string]any{
		"percent": 101,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSupplyAndHoldersEndpoints(t *testing.T) {
	e := newEnv(t)
	investor := id.NewIdentity()

	rec := e.do(t, e.guard.issuer, http.MethodPost, "/fund/mint", map[string]any{
		"recipient": investor.String(),
		"amount":    100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, investor, http.MethodGet, "/fund/supply", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var supply struct {
		TotalSupply uint64 `json:"total_supply"`
		Holders     int    `json:"holders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &supply))
	assert.Equal(t, uint64(125), supply.TotalSupply)
	assert.Equal(t, 2, supply.Holders)

	rec = e.do(t, investor, http.MethodGet, "/fund/holders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var holders []struct {
		Identity string `json:"identity"`
		Balance  uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holders))
	require.Len(t, holders, 2)
	assert.Equal(t, investor.String(), holders[0].Identity)
}

func TestBalanceEndpoint_MalformedIdentity(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, id.NewIdentity(), http.MethodGet, "/fund/balance/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMintEndpoint_UnknownFieldRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, e.guard.issuer, http.MethodPost, "/fund/mint", map[string]any{
		"recipient": id.NewIdentity().String(),
		"amount":    100,
		"extra":     true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
