package governance

import "context"

// Store persists the singleton Params record.
//
// Load returns sentinel.ErrNotFound until Save has been called once; the
// service seeds the record at boot.
type Store interface {
	Load(ctx context.Context) (Params, error)
	Save(ctx context.Context, params Params) error
}
