// Package memory is the in-process Params store used by unit tests and
// single-node development setups.
package memory

import (
	"context"
	"sync"

	"tranche/internal/governance"
	"tranche/pkg/platform/sentinel"
)

type Store struct {
	mu     sync.RWMutex
	params governance.Params
	seeded bool
}

func New() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) (governance.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seeded {
		return governance.Params{}, sentinel.ErrNotFound
	}
	return s.params, nil
}

func (s *Store) Save(_ context.Context, params governance.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = params
	s.seeded = true
	return nil
}
