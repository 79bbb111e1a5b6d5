// Package kvstoretest holds the behavioral suite every kvstore.Store backend
// must pass.
package kvstoretest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

// Advance moves the backend's clock forward by at least d.
type Advance func(t *testing.T, d time.Duration)

// Sleep is an Advance for backends that expire on wall-clock time.
func Sleep(_ *testing.T, d time.Duration) { time.Sleep(d) }

func Run(t *testing.T, newStore func(*testing.T) kvstore.Store, advance Advance) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		v, ok, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("v1"), time.Minute))
		v, ok, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v1"), v)

		require.NoError(t, s.Set(ctx, "k", []byte("v2"), time.Minute))
		v, _, _ = s.Get(ctx, "k")
		assert.Equal(t, []byte("v2"), v)
	})

	t.Run("EmptyValueIsHit", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "neg", []byte{}, time.Minute))
		v, ok, err := s.Get(ctx, "neg")
		require.NoError(t, err)
		assert.True(t, ok, "empty value must be distinguishable from a miss")
		assert.NotNil(t, v)
		assert.Len(t, v, 0)
	})

	t.Run("SetExpires", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "short", []byte("x"), 100*time.Millisecond))
		advance(t, 300*time.Millisecond)
		_, ok, err := s.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetWithoutTTLHasNoExpiry", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "forever", []byte("x"), 0))
		d, ok, err := s.TTL(ctx, "forever")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, time.Duration(0), d)
	})

	t.Run("TTLReported", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("x"), 2*time.Minute))
		d, ok, err := s.TTL(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, float64(2*time.Minute), float64(d), float64(5*time.Second))

		_, ok, err = s.TTL(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetNX", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.SetNX(ctx, "lock", []byte("a"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetNX(ctx, "lock", []byte("b"), time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		v, _, _ := s.Get(ctx, "lock")
		assert.Equal(t, []byte("a"), v)
	})

	t.Run("SetNXConcurrentSingleWinner", func(t *testing.T) {
		s := newStore(t)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.SetNX(ctx, "race", []byte("x"), time.Minute)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("DelIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "k", []byte("x"), time.Minute))
		require.NoError(t, s.Del(ctx, "k"))
		require.NoError(t, s.Del(ctx, "k"))
		_, ok, _ := s.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("CompareAndDelete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, "lock", []byte("owner-1"), time.Minute))

		ok, err := s.CompareAndDelete(ctx, "lock", []byte("owner-2"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, exists, _ := s.Get(ctx, "lock")
		assert.True(t, exists, "foreign token must not release the key")

		ok, err = s.CompareAndDelete(ctx, "lock", []byte("owner-1"))
		require.NoError(t, err)
		assert.True(t, ok)
		_, exists, _ = s.Get(ctx, "lock")
		assert.False(t, exists)

		ok, err = s.CompareAndDelete(ctx, "lock", []byte("owner-1"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("HashRoundTrip", func(t *testing.T) {
		s := newStore(t)
		m, err := s.HGetAll(ctx, "h")
		require.NoError(t, err)
		assert.Empty(t, m)

		fields := map[string]string{"id": "1", "nickName": "user_x"}
		require.NoError(t, s.HSetAll(ctx, "h", fields, time.Minute))
		m, err = s.HGetAll(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, fields, m)

		d, ok, err := s.TTL(ctx, "h")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Greater(t, d, time.Duration(0))
	})

	t.Run("ExpireRefreshesTTL", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.HSetAll(ctx, "sess", map[string]string{"id": "1"}, time.Minute))
		ok, err := s.Expire(ctx, "sess", 30*time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		d, _, _ := s.TTL(ctx, "sess")
		assert.Greater(t, d, 29*time.Minute)

		ok, err = s.Expire(ctx, "missing", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
