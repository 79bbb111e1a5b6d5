package guardcache

import (
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

var (
	// ErrStoreUnavailable marks transport or backend failures of the store.
	ErrStoreUnavailable = kvstore.ErrUnavailable

	ErrLockContention  = errors.New("guardcache: lock contention")
	ErrInvalidOptions  = errors.New("guardcache: invalid options")
	ErrUnknownStrategy = errors.New("guardcache: unknown strategy")
)

// SerializationError reports an entry whose envelope or payload could not be
// decoded, or a value the codec could not encode. Read paths delete such
// entries and treat them as misses.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("guardcache: malformed entry %q: %v", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// LockWaitError is returned by the mutex strategy when the rebuild lock could
// not be taken within LockWait or MaxLockAttempts.
type LockWaitError struct {
	Key      string
	Attempts int
	Waited   time.Duration
}

func (e *LockWaitError) Error() string {
	return fmt.Sprintf("guardcache: gave up on lock for %q after %d attempts (%s)",
		e.Key, e.Attempts, e.Waited.Round(time.Millisecond))
}

func (e *LockWaitError) Unwrap() error { return ErrLockContention }
