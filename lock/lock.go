// Package lock implements a short-lived mutual-exclusion lease on top of a
// kvstore.Store.
//
// A lease is a key written with SetNX and a fixed TTL. Its value is a random
// holder token, and Unlock only deletes the key while it still carries that
// token, so a holder whose TTL ran out cannot release a lock that another
// caller has since acquired. The TTL is the only recovery path for a crashed
// holder.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

// DefaultTTL is the lease lifetime used when New is given ttl <= 0.
const DefaultTTL = 10 * time.Second

var ErrNilStore = errors.New("lock: nil store")

type Locker struct {
	store kvstore.Store
	ttl   time.Duration
}

func New(store kvstore.Store, ttl time.Duration) (*Locker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{store: store, ttl: ttl}, nil
}

// TTL reports the lease lifetime.
func (l *Locker) TTL() time.Duration { return l.ttl }

// TryLock makes a single attempt to acquire key. It reports false without an
// error when another holder owns the key.
func (l *Locker) TryLock(ctx context.Context, key string) (*Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, []byte(token), l.ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lease{store: l.store, key: key, token: token}, true, nil
}

// Lease is a held lock.
type Lease struct {
	store kvstore.Store
	key   string
	token string
}

func (l *Lease) Key() string   { return l.key }
func (l *Lease) Token() string { return l.token }

// Unlock releases the lease if it is still held by this token. It reports
// false when the lease had already expired or passed to another holder.
func (l *Lease) Unlock(ctx context.Context) (bool, error) {
	return l.store.CompareAndDelete(ctx, l.key, []byte(l.token))
}
