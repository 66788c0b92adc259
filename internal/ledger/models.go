// Package ledger is the fund's share ledger: it mints shares against
// deposits, moves them along the permitted transfer paths, redeems them
// against the reserve and distributes profit pro rata across the holder
// registry.
package ledger

import (
	id "tranche/pkg/domain"
)

// Snapshot is a consistent read of the fund's aggregate state.
type Snapshot struct {
	TotalSupply uint64
	Reserve     uint64
	Holders     int
}

// Holding pairs a registered holder with its current balance. Balances can
// be zero: the registry never forgets a holder.
type Holding struct {
	Identity id.Identity
	Balance  uint64
}

// MintResult reports what a mint produced: the investor's shares and the
// protocol fee shares created alongside them.
type MintResult struct {
	Recipient id.Identity
	Minted    uint64
	FeeShares uint64
	Supply    uint64
}

// RedeemResult reports a redemption: shares burned and reserve units paid.
type RedeemResult struct {
	Holder  id.Identity
	Shares  uint64
	Payout  uint64
	Supply  uint64
	Reserve uint64
}

// Payout is one holder's slice of a profit distribution.
type Payout struct {
	Identity id.Identity
	Amount   uint64
}

// DistributionResult reports a completed profit distribution.
type DistributionResult struct {
	Total   uint64
	Payouts []Payout
	Reserve uint64
}
