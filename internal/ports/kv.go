package ports

import "context"

// KV is the flat key/value backend everything durable is built on. Values
// are opaque strings produced by the codec.
type KV interface {
	Set(ctx context.Context, key, value string) error
	// Get returns the stored value, or found=false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Remove(ctx context.Context, key string) error
}
