package ledger

import (
	"context"

	id "tranche/pkg/domain"
)

// Tx is a transactional view of the ledger. Reads observe earlier writes in
// the same transaction; nothing is visible outside until the Atomically
// callback returns nil.
type Tx interface {
	Balance(ctx context.Context, holder id.Identity) (uint64, error)
	SetBalance(ctx context.Context, holder id.Identity, balance uint64) error

	TotalSupply(ctx context.Context) (uint64, error)
	SetTotalSupply(ctx context.Context, supply uint64) error

	Reserve(ctx context.Context) (uint64, error)
	SetReserve(ctx context.Context, reserve uint64) error

	// Holders returns every registered holder in first-seen order.
	Holders(ctx context.Context) ([]id.Identity, error)
	HasHolder(ctx context.Context, holder id.Identity) (bool, error)
	// AppendHolder registers a holder at the end of the registry. Appending
	// an already registered holder is an error; callers check first.
	AppendHolder(ctx context.Context, holder id.Identity) error
}

// Store is the ledger's persistence port. Balances, total supply, the
// holder registry and the reserve live behind one store so every operation
// that touches more than one of them commits atomically.
type Store interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
