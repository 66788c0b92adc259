// Package governance manages who controls the fund: the owner and the
// two-phase transfer of ownership, the active flag gating ledger mutations,
// and the issuer and broker role assignments.
package governance

import (
	id "tranche/pkg/domain"
)

// Params is the fund's control state. There is exactly one Params record
// per deployment.
type Params struct {
	// Owner approves privileged operations and appoints roles.
	Owner id.Identity
	// PendingOwner is the candidate of an in-flight ownership transfer,
	// or nil when none is pending.
	PendingOwner id.Identity
	// Active gates minting, controlled transfers and distribution.
	Active bool
	// Issuer is the sole identity allowed to mint shares.
	Issuer id.Identity
	// Broker may move shares on behalf of holders and trigger redemptions.
	Broker id.Identity
}
