// Package kvstore defines the key-value store contract consumed by guardcache,
// the distributed lock, and the session store.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes previously passed to Set for a key. An empty value is a legal value and
// must stay distinguishable from a missing key, because guardcache stores
// negative markers as empty values.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps transport or backend failures. Callers test with errors.Is.
var ErrUnavailable = errors.New("kvstore: unavailable")

// Store is a TTL-capable string/hash store. Safe for concurrent use.
// A ttl <= 0 means "no expiry" wherever a ttl is accepted.
type Store interface {
	// Get returns (value, true, nil) on hit, (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value unconditionally.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes value only if key is absent. Reports whether it wrote.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes key. Missing keys are not an error.
	Del(ctx context.Context, key string) error

	// CompareAndDelete atomically removes key iff its current value equals expected.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// HGetAll returns all fields of a hash; a missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSetAll writes fields into the hash at key and, when ttl > 0, sets its
	// expiry in the same step.
	HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// Expire resets the TTL of an existing key. Reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime. ok=false when the key is missing;
	// (0, true) for keys without expiry.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)

	// Close releases resources.
	Close(ctx context.Context) error
}
