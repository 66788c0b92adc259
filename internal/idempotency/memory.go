package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is the single-instance fallback used when Redis is not
// configured. Expired claims are dropped lazily on the next Claim.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claims: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Claim(_ context.Context, key string, retention time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, held := g.claims[key]; held && now.Before(expiry) {
		return false, nil
	}
	g.claims[key] = now.Add(retention)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, key)
	return nil
}
