package store

import (
	"context"
	"sync"

	"tranche/internal/auth"
	id "tranche/pkg/domain"
	"tranche/pkg/platform/sentinel"
)

// InMemory keeps credentials in process memory, seeded at boot from the
// bootstrap configuration.
type InMemory struct {
	mu          sync.RWMutex
	credentials map[id.Identity]*auth.Credential
}

func NewInMemory() *InMemory {
	return &InMemory{credentials: make(map[id.Identity]*auth.Credential)}
}

func (s *InMemory) Create(_ context.Context, cred *auth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[cred.Identity]; exists {
		return sentinel.ErrConflict
	}
	copied := *cred
	s.credentials[cred.Identity] = &copied
	return nil
}

func (s *InMemory) FindByIdentity(_ context.Context, identity id.Identity) (*auth.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}
