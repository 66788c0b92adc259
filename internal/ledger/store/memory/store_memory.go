// Package memory is the in-process ledger store. A transaction stages a
// full copy of the state and commits it under the store lock only when the
// callback succeeds, so a failed operation leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"tranche/internal/ledger"
	id "tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

type state struct {
	balances    map[id.Identity]uint64
	totalSupply uint64
	reserve     uint64
	holders     []id.Identity
	holderSet   map[id.Identity]struct{}
}

func newState() *state {
	return &state{
		balances:  make(map[id.Identity]uint64),
		holderSet: make(map[id.Identity]struct{}),
	}
}

func (s *state) clone() *state {
	next := &state{
		balances:    make(map[id.Identity]uint64, len(s.balances)),
		totalSupply: s.totalSupply,
		reserve:     s.reserve,
		holders:     append([]id.Identity{}, s.holders...),
		holderSet:   make(map[id.Identity]struct{}, len(s.holderSet)),
	}
	for holder, balance := range s.balances {
		next.balances[holder] = balance
	}
	for holder := range s.holderSet {
		next.holderSet[holder] = struct{}{}
	}
	return next
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

// Atomically runs fn against a staged copy and swaps it in on success.
func (s *Store) Atomically(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(ctx, &tx{state: staged}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

type tx struct {
	state *state
}

func (t *tx) Balance(_ context.Context, holder id.Identity) (uint64, error) {
	return t.state.balances[holder], nil
}

func (t *tx) SetBalance(_ context.Context, holder id.Identity, balance uint64) error {
	t.state.balances[holder] = balance
	return nil
}

func (t *tx) TotalSupply(_ context.Context) (uint64, error) {
	return t.state.totalSupply, nil
}

func (t *tx) SetTotalSupply(_ context.Context, supply uint64) error {
	t.state.totalSupply = supply
	return nil
}

func (t *tx) Reserve(_ context.Context) (uint64, error) {
	return t.state.reserve, nil
}

func (t *tx) SetReserve(_ context.Context, reserve uint64) error {
	t.state.reserve = reserve
	return nil
}

func (t *tx) Holders(_ context.Context) ([]id.Identity, error) {
	return append([]id.Identity{}, t.state.holders...), nil
}

func (t *tx) HasHolder(_ context.Context, holder id.Identity) (bool, error) {
	_, ok := t.state.holderSet[holder]
	return ok, nil
}

func (t *tx) AppendHolder(_ context.Context, holder id.Identity) error {
	if _, ok := t.state.holderSet[holder]; ok {
		return dErrors.Newf(dErrors.CodeConflict, "holder %s already registered", holder)
	}
	t.state.holders = append(t.state.holders, holder)
	t.state.holderSet[holder] = struct{}{}
	return nil
}
