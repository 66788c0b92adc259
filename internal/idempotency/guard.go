// Package idempotency deduplicates retried mutation requests by their
// Idempotency-Key header. A key is claimed before the operation runs;
// replays inside the retention window are rejected as conflicts.
package idempotency

import (
	"context"
	"time"
)

// DefaultRetention is how long a claimed key blocks replays.
const DefaultRetention = 24 * time.Hour

// Guard claims idempotency keys. Claim returns true when the key was free
// and is now held by this request.
type Guard interface {
	Claim(ctx context.Context, key string, retention time.Duration) (bool, error)
	// Release frees a key so a failed operation can be retried with the
	// same key.
	Release(ctx context.Context, key string) error
}
