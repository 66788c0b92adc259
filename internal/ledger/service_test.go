package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tranche/internal/ledger"
	"tranche/internal/ledger/store/memory"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
	"tranche/pkg/platform/audit"
	auditmemory "tranche/pkg/platform/audit/store/memory"
)

// stubGuard is a fixed governance view; tests flip fields directly.
type stubGuard struct {
	active bool
	issuer id.Identity
	broker id.Identity
	owner  id.Identity
}

func (g *stubGuard) IsActive(context.Context) (bool, error)       { return g.active, nil }
func (g *stubGuard) Issuer(context.Context) (id.Identity, error)  { return g.issuer, nil }
func (g *stubGuard) Broker(context.Context) (id.Identity, error)  { return g.broker, nil }
func (g *stubGuard) RequireOwner(_ context.Context, caller id.Identity) error {
	if caller != g.owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the fund owner")
	}
	return nil
}

type fixture struct {
	svc         *ledger.Service
	guard       *stubGuard
	audits      *auditmemory.InMemoryStore
	beneficiary id.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	guard := &stubGuard{
		active: true,
		issuer: id.NewIdentity(),
		broker: id.NewIdentity(),
		owner:  id.NewIdentity(),
	}
	audits := auditmemory.NewInMemoryStore()
	beneficiary := id.NewIdentity()

	svc, err := ledger.New(memory.New(), guard, 20, beneficiary,
		ledger.WithAuditEmitter(audit.NewPublisher(audits)))
	require.NoError(t, err)
	return &fixture{svc: svc, guard: guard, audits: audits, beneficiary: beneficiary}
}

func (f *fixture) mint(t *testing.T, recipient id.Identity, amount uint64) {
	t.Helper()
	_, err := f.svc.Mint(context.Background(), f.guard.issuer, recipient, amount)
	require.NoError(t, err)
}

func (f *fixture) deposit(t *testing.T, amount uint64) {
	t.Helper()
	_, err := f.svc.Deposit(context.Background(), f.guard.owner, amount)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, holder id.Identity) uint64 {
	t.Helper()
	balance, err := f.svc.Balance(context.Background(), holder)
	require.NoError(t, err)
	return balance
}

func (f *fixture) snapshot(t *testing.T) *ledger.Snapshot {
	t.Helper()
	snap, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestMint_SplitsProtocolFee(t *testing.T) {
	f := newFixture(t)
	investor := id.NewIdentity()

	result, err := f.svc.Mint(context.Background(), f.guard.issuer, investor, 100)
	require.NoError(t, err)

	// At a 20% fee, 100 investor shares carry 25 fee shares: the fee is
	// 20% of the 125 total minted.
	assert.Equal(t, uint64(100), result.Minted)
	assert.Equal(t, uint64(25), result.FeeShares)
	assert.Equal(t, uint64(125), result.Supply)

	assert.Equal(t, uint64(100), f.balance(t, investor))
	assert.Equal(t, uint64(25), f.balance(t, f.beneficiary))
	assert.Equal(t, uint64(125), f.snapshot(t).TotalSupply)
}

func TestMint_FeeTruncatesButBeneficiaryStillRegisters(t *testing.T) {
	f := newFixture(t)
	investor := id.NewIdentity()

	result, err := f.svc.Mint(context.Background(), f.guard.issuer, investor, 3)
	require.NoError(t, err)
	assert.Zero(t, result.FeeShares)

	holdings, err := f.svc.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, f.beneficiary, holdings[1].Identity)
	assert.Zero(t, holdings[1].Balance)
}

func TestMint_OnlyIssuer(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Mint(context.Background(), id.NewIdentity(), id.NewIdentity(), 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Zero(t, f.snapshot(t).TotalSupply, "failed mint must not change supply")
}

func TestMint_RequiresActive(t *testing.T) {
	f := newFixture(t)
	f.guard.active = false

	_, err := f.svc.Mint(context.Background(), f.guard.issuer, id.NewIdentity(), 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInactive))
}

func TestMint_RejectsZeroAmountAndNilRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Mint(ctx, f.guard.issuer, id.NewIdentity(), 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.svc.Mint(ctx, f.guard.issuer, id.NilIdentity, 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRecipient))
}

func TestDirectTransfer_AlwaysDisabled(t *testing.T) {
	f := newFixture(t)
	investor := id.NewIdentity()
	f.mint(t, investor, 100)
	before := f.balance(t, investor)

	err := f.svc.DirectTransfer(context.Background(), investor, id.NewIdentity(), 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOperationDisabled))
	assert.Equal(t, before, f.balance(t, investor), "disabled path must never touch balances")
}

func TestBrokeredTransfer_MovesSharesAndConservesSupply(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	to := id.NewIdentity()
	f.mint(t, from, 100)
	supplyBefore := f.snapshot(t).TotalSupply

	err := f.svc.BrokeredTransfer(context.Background(), f.guard.broker, from, to, 40)
	require.NoError(t, err)

	assert.Equal(t, uint64(60), f.balance(t, from))
	assert.Equal(t, uint64(40), f.balance(t, to))
	assert.Equal(t, supplyBefore, f.snapshot(t).TotalSupply)
}

func TestBrokeredTransfer_DoesNotRegisterRecipient(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	to := id.NewIdentity()
	f.mint(t, from, 100)

	require.NoError(t, f.svc.BrokeredTransfer(context.Background(), f.guard.broker, from, to, 40))

	// The broker path moves balances only; the recipient holds shares but
	// does not join the registry and is skipped by distributions.
	holdings, err := f.svc.Holdings(context.Background())
	require.NoError(t, err)
	for _, holding := range holdings {
		assert.NotEqual(t, to, holding.Identity)
	}
	assert.Equal(t, uint64(40), f.balance(t, to))
}

func TestBrokeredTransfer_NonBrokerLeavesBalancesUntouched(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	to := id.NewIdentity()
	f.mint(t, from, 100)

	err := f.svc.BrokeredTransfer(context.Background(), id.NewIdentity(), from, to, 40)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, uint64(100), f.balance(t, from))
	assert.Zero(t, f.balance(t, to))
}

func TestBrokeredTransfer_AllowedWhileInactive(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	f.mint(t, from, 100)
	f.guard.active = false

	err := f.svc.BrokeredTransfer(context.Background(), f.guard.broker, from, id.NewIdentity(), 10)
	require.NoError(t, err)
}

func TestBrokeredTransfer_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	f.mint(t, from, 100)

	err := f.svc.BrokeredTransfer(context.Background(), f.guard.broker, from, id.NewIdentity(), 101)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	assert.Equal(t, uint64(100), f.balance(t, from), "failed transfer must leave state unchanged")
}

func TestControlledTransfer_IssuerOnlyAndGatedOnActive(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	to := id.NewIdentity()
	f.mint(t, from, 100)
	ctx := context.Background()

	// Issuance authority, not ownership: the owner and the broker are both
	// turned away.
	err := f.svc.ControlledTransfer(ctx, f.guard.owner, from, to, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	err = f.svc.ControlledTransfer(ctx, f.guard.broker, from, to, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	f.guard.active = false
	err = f.svc.ControlledTransfer(ctx, f.guard.issuer, from, to, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInactive))

	f.guard.active = true
	require.NoError(t, f.svc.ControlledTransfer(ctx, f.guard.issuer, from, to, 10))
	assert.Equal(t, uint64(90), f.balance(t, from))
	assert.Equal(t, uint64(10), f.balance(t, to))
}

func TestControlledTransfer_RegistersRecipient(t *testing.T) {
	f := newFixture(t)
	from := id.NewIdentity()
	to := id.NewIdentity()
	f.mint(t, from, 100)

	require.NoError(t, f.svc.ControlledTransfer(context.Background(), f.guard.issuer, from, to, 10))

	holdings, err := f.svc.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 3)
	assert.Equal(t, to, holdings[2].Identity)
}

func TestRedeem_PaysProportionalReserveSlice(t *testing.T) {
	f := newFixture(t)
	holder := id.NewIdentity()
	f.mint(t, holder, 800) // +200 fee shares, supply 1000
	f.deposit(t, 500)

	result, err := f.svc.Redeem(context.Background(), holder, 100)
	require.NoError(t, err)

	// 100 of 1000 shares against a reserve of 500 pays out 50.
	assert.Equal(t, uint64(50), result.Payout)
	assert.Equal(t, uint64(900), result.Supply)
	assert.Equal(t, uint64(450), result.Reserve)
	assert.Equal(t, uint64(700), f.balance(t, holder))
}

func TestRedeem_TruncatesInFundsFavor(t *testing.T) {
	f := newFixture(t)
	holder := id.NewIdentity()
	f.mint(t, holder, 800) // supply 1000
	f.deposit(t, 999)

	result, err := f.svc.Redeem(context.Background(), holder, 1)
	require.NoError(t, err)

	// 1 * 999 / 1000 truncates to 0: the dust stays in the reserve.
	assert.Zero(t, result.Payout)
	assert.Equal(t, uint64(999), result.Reserve)
	assert.Equal(t, uint64(999), result.Supply)
}

func TestRedeem_EmptyReserve(t *testing.T) {
	f := newFixture(t)
	holder := id.NewIdentity()
	f.mint(t, holder, 800)

	_, err := f.svc.Redeem(context.Background(), holder, 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeEmptyReserve))
	assert.Equal(t, uint64(800), f.balance(t, holder))
}

func TestRedeem_BurnsOnlyCallersShares(t *testing.T) {
	f := newFixture(t)
	holder := id.NewIdentity()
	f.mint(t, holder, 800)
	f.deposit(t, 500)

	// Redemption is self-service: the broker has no position to burn and
	// cannot reach the holder's shares.
	_, err := f.svc.Redeem(context.Background(), f.guard.broker, 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	assert.Equal(t, uint64(800), f.balance(t, holder))
}

func TestRedeem_AllowedWhileInactive(t *testing.T) {
	f := newFixture(t)
	holder := id.NewIdentity()
	f.mint(t, holder, 800)
	f.deposit(t, 500)
	f.guard.active = false

	_, err := f.svc.Redeem(context.Background(), holder, 100)
	require.NoError(t, err)
}

func TestRedeem_InsufficientShares(t *testing.T) {
	f := newFixture(t)
	holder := id.NewIdentity()
	f.mint(t, holder, 100)
	f.deposit(t, 500)
	before := f.snapshot(t)

	_, err := f.svc.Redeem(context.Background(), holder, 101)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	assert.Equal(t, before, f.snapshot(t))
}

func TestDistributeProfit_ProRataInRegistryOrder(t *testing.T) {
	f := newFixture(t)
	alice := id.NewIdentity()
	bob := id.NewIdentity()
	// Move every minted share onto alice and bob so the split is exactly
	// 300/700 of a 1000 supply. The controlled path registers bob.
	f.mint(t, alice, 800)
	ctx := context.Background()
	require.NoError(t, f.svc.ControlledTransfer(ctx, f.guard.issuer, alice, bob, 500))
	require.NoError(t, f.svc.ControlledTransfer(ctx, f.guard.issuer, f.beneficiary, bob, 200))
	f.deposit(t, 10000)

	result, err := f.svc.DistributeProfit(ctx, f.guard.owner, 10)
	require.NoError(t, err)

	// 10% of 10000 is 1000; 300 and 700 of 1000 shares pay 300 and 700.
	require.Len(t, result.Payouts, 3)
	assert.Equal(t, alice, result.Payouts[0].Identity)
	assert.Equal(t, uint64(300), result.Payouts[0].Amount)
	assert.Equal(t, f.beneficiary, result.Payouts[1].Identity)
	assert.Zero(t, result.Payouts[1].Amount, "registered zero-balance holders receive zero, not removal")
	assert.Equal(t, bob, result.Payouts[2].Identity)
	assert.Equal(t, uint64(700), result.Payouts[2].Amount)

	assert.Equal(t, uint64(1000), result.Total)
	assert.Equal(t, uint64(9000), result.Reserve)
	assert.Equal(t, uint64(9000), f.snapshot(t).Reserve)
}

func TestDistributeProfit_TruncationStaysInReserve(t *testing.T) {
	f := newFixture(t)
	alice := id.NewIdentity()
	f.mint(t, alice, 8) // fee 2, supply 10
	f.deposit(t, 35)

	result, err := f.svc.DistributeProfit(context.Background(), f.guard.owner, 10)
	require.NoError(t, err)

	// 10% of 35 truncates to 3; 8/10 of 3 pays 2, 2/10 of 3 pays 0. The
	// unpaid unit stays in the reserve.
	assert.Equal(t, uint64(2), result.Total)
	assert.Equal(t, uint64(33), result.Reserve)
}

func TestDistributeProfit_GuardsAndEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.DistributeProfit(ctx, f.guard.broker, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = f.svc.DistributeProfit(ctx, f.guard.owner, 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPercentage))

	_, err = f.svc.DistributeProfit(ctx, f.guard.owner, 100)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPercentage), "100 would drain the reserve; the interval is open")

	_, err = f.svc.DistributeProfit(ctx, f.guard.owner, 101)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidPercentage))

	_, err = f.svc.DistributeProfit(ctx, f.guard.owner, 99)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoHolders), "99 passes the percentage guard")

	_, err = f.svc.DistributeProfit(ctx, f.guard.owner, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoHolders), "zero supply has nobody to pay")

	f.mint(t, id.NewIdentity(), 100)
	_, err = f.svc.DistributeProfit(ctx, f.guard.owner, 10)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeEmptyReserve))
}

func TestDistributeProfit_RepeatableNotIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := id.NewIdentity()
	f.mint(t, alice, 800)
	f.deposit(t, 10000)
	ctx := context.Background()

	first, err := f.svc.DistributeProfit(ctx, f.guard.owner, 10)
	require.NoError(t, err)
	second, err := f.svc.DistributeProfit(ctx, f.guard.owner, 10)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), first.Total)
	assert.Equal(t, uint64(900), second.Total, "second run pays 10% of the reduced reserve")
}

func TestDeposit_OpenToAnyCaller(t *testing.T) {
	f := newFixture(t)

	// Reserve receipts are passive: any authenticated identity can pay in.
	reserve, err := f.svc.Deposit(context.Background(), id.NewIdentity(), 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), reserve)
	assert.Equal(t, uint64(500), f.snapshot(t).Reserve)
}

func TestAuditTrail_MintCoversInvestorAndBeneficiary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	investor := id.NewIdentity()

	_, err := f.svc.Mint(ctx, f.guard.issuer, investor, 100)
	require.NoError(t, err)

	// Each credited party gets an issuance event and a from-null transfer
	// event, investor first.
	events, err := f.audits.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, audit.ActionSharesIssued, events[0].Action)
	assert.Equal(t, investor, events[0].Subject)
	assert.Equal(t, uint64(100), events[0].Amount)
	assert.Equal(t, audit.ActionSharesTransferred, events[1].Action)
	assert.Equal(t, investor, events[1].To)
	assert.True(t, events[1].From.IsNil(), "issuance transfers come from the null identity")

	assert.Equal(t, audit.ActionSharesIssued, events[2].Action)
	assert.Equal(t, f.beneficiary, events[2].Subject)
	assert.Equal(t, uint64(25), events[2].Amount)
	assert.Equal(t, audit.ActionSharesTransferred, events[3].Action)
	assert.Equal(t, f.beneficiary, events[3].To)
	assert.Equal(t, uint64(25), events[3].Amount)
}

func TestAuditTrail_FailedOperationEmitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	holder := id.NewIdentity()
	f.mint(t, holder, 100)
	f.audits.Clear()

	err := f.svc.BrokeredTransfer(ctx, f.guard.broker, holder, id.NewIdentity(), 500)
	require.Error(t, err)

	events, err := f.audits.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAuditTrail_RedemptionEmitsBurnAndPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	holder := id.NewIdentity()
	f.mint(t, holder, 800)
	f.deposit(t, 500)
	f.audits.Clear()

	_, err := f.svc.Redeem(ctx, holder, 100)
	require.NoError(t, err)

	events, err := f.audits.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionSharesRedeemed, events[0].Action)
	assert.Equal(t, uint64(100), events[0].Amount)
	assert.Equal(t, audit.ActionReservePaidOut, events[1].Action)
	assert.Equal(t, uint64(50), events[1].Amount)
}

func TestHolderRegistry_FirstSeenOrderSurvivesZeroing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := id.NewIdentity()
	second := id.NewIdentity()
	f.mint(t, first, 100)
	f.mint(t, second, 100)

	require.NoError(t, f.svc.BrokeredTransfer(ctx, f.guard.broker, first, second, 100))

	holdings, err := f.svc.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 3)
	assert.Equal(t, first, holdings[0].Identity, "zeroed holders keep their registry slot")
	assert.Zero(t, holdings[0].Balance)
	assert.Equal(t, f.beneficiary, holdings[1].Identity)
	assert.Equal(t, second, holdings[2].Identity)
}
