// Package auth authenticates fund participants: it stores client
// credentials (identity + bcrypt secret hash) and exchanges them for
// access tokens.
package auth

import (
	"time"

	id "tranche/pkg/domain"
)

// Credential is one participant's login record.
type Credential struct {
	Identity   id.Identity
	SecretHash string
	Label      string
	CreatedAt  time.Time
}

// Registration is the result of onboarding a new participant. The plaintext
// secret is returned exactly once and never stored.
type Registration struct {
	Identity id.Identity
	Secret   string
}
