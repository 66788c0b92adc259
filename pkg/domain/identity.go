// Package domain defines the typed identifiers shared across the ledger.
//
// Identity is the opaque key for every participant in the fund: investors,
// the protocol fee beneficiary, the issuer, the broker and the owner. It is
// a distinct type rather than a bare uuid.UUID so that balances, registry
// rows and authorization checks cannot be fed an unrelated identifier by
// accident.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "tranche/pkg/domain-errors"
)

// Identity identifies a fund participant. The zero value is the null
// identity and is never a valid mint or transfer recipient.
type Identity uuid.UUID

// NilIdentity is the null identity.
var NilIdentity = Identity(uuid.Nil)

// NewIdentity returns a fresh random identity.
func NewIdentity() Identity {
	return Identity(uuid.New())
}

// ParseIdentity parses a string into an Identity. Inputs must be valid,
// non-nil UUIDs; anything else is rejected at the trust boundary.
func ParseIdentity(s string) (Identity, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return NilIdentity, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	if len(trimmed) > 64 {
		return NilIdentity, dErrors.New(dErrors.CodeInvalidInput, "identity is malformed")
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return NilIdentity, dErrors.New(dErrors.CodeInvalidInput, "identity is malformed")
	}
	if parsed == uuid.Nil {
		return NilIdentity, dErrors.New(dErrors.CodeInvalidInput, "identity must not be nil")
	}
	return Identity(parsed), nil
}

// IsNil reports whether the identity is the null identity.
func (i Identity) IsNil() bool {
	return uuid.UUID(i) == uuid.Nil
}

func (i Identity) String() string {
	return uuid.UUID(i).String()
}
