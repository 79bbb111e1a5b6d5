package near

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/guardcache/kvstore"
	"github.com/unkn0wn-root/guardcache/kvstore/kvstoretest"
	"github.com/unkn0wn-root/guardcache/kvstore/memory"
)

func newInner(t *testing.T) *memory.Store {
	t.Helper()
	inner, err := memory.New(memory.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close(context.Background()) })
	return inner
}

func newTestStore(t *testing.T, inner kvstore.Store, window time.Duration) *Store {
	t.Helper()
	s, err := New(Config{Inner: inner, LifeWindow: window})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestNearStoreSuite(t *testing.T) {
	kvstoretest.Run(t, func(t *testing.T) kvstore.Store {
		return newTestStore(t, newInner(t), time.Second)
	}, kvstoretest.Sleep)
}

func TestNewRequiresInner(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilInner)
}

func TestHotReadsServedLocally(t *testing.T) {
	ctx := context.Background()
	inner := newInner(t)
	s := newTestStore(t, inner, time.Minute)

	require.NoError(t, inner.Set(ctx, "cache:shop:1", []byte("v1"), 0))
	v, ok, err := s.Get(ctx, "cache:shop:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	// a write by another process is not seen until the window passes
	require.NoError(t, inner.Set(ctx, "cache:shop:1", []byte("v2"), 0))
	v, _, _ = s.Get(ctx, "cache:shop:1")
	assert.Equal(t, []byte("v1"), v)
	assert.GreaterOrEqual(t, s.Stats().Hits, int64(1))

	// a write through the wrapper is seen immediately
	require.NoError(t, s.Set(ctx, "cache:shop:1", []byte("v3"), 0))
	v, _, _ = s.Get(ctx, "cache:shop:1")
	assert.Equal(t, []byte("v3"), v)

	require.NoError(t, s.Del(ctx, "cache:shop:1"))
	_, ok, _ = s.Get(ctx, "cache:shop:1")
	assert.False(t, ok)
}

func TestEmptyValueStaysAHitLocally(t *testing.T) {
	ctx := context.Background()
	inner := newInner(t)
	s := newTestStore(t, inner, time.Minute)

	require.NoError(t, inner.Set(ctx, "cache:shop:99", []byte{}, time.Minute))
	for i := 0; i < 2; i++ {
		v, ok, err := s.Get(ctx, "cache:shop:99")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, v, 0)
	}
}

func TestMissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newInner(t)
	s := newTestStore(t, inner, time.Minute)

	_, ok, _ := s.Get(ctx, "k")
	require.False(t, ok)
	require.NoError(t, inner.Set(ctx, "k", []byte("x"), 0))
	_, ok, _ = s.Get(ctx, "k")
	assert.True(t, ok)
}

// gatedStore parks the first Get after it has read from the inner store.
type gatedStore struct {
	kvstore.Store
	armed   atomic.Bool
	read    chan struct{}
	proceed chan struct{}
}

func newGatedStore(inner kvstore.Store) *gatedStore {
	g := &gatedStore{Store: inner, read: make(chan struct{}), proceed: make(chan struct{})}
	g.armed.Store(true)
	return g
}

func (g *gatedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := g.Store.Get(ctx, key)
	if g.armed.CompareAndSwap(true, false) {
		g.read <- struct{}{}
		<-g.proceed
	}
	return v, ok, err
}

func TestWriteDuringReadIsNotMasked(t *testing.T) {
	writes := map[string]struct {
		write func(context.Context, *Store) error
		want  []byte
	}{
		"set": {
			write: func(ctx context.Context, s *Store) error { return s.Set(ctx, "cache:shop:1", []byte("v2"), 0) },
			want:  []byte("v2"),
		},
		"del": {
			write: func(ctx context.Context, s *Store) error { return s.Del(ctx, "cache:shop:1") },
		},
	}
	for name, tc := range writes {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			inner := newGatedStore(newInner(t))
			s := newTestStore(t, inner, time.Minute)
			require.NoError(t, inner.Store.Set(ctx, "cache:shop:1", []byte("v1"), 0))

			done := make(chan []byte, 1)
			go func() {
				v, _, _ := s.Get(ctx, "cache:shop:1")
				done <- v
			}()
			<-inner.read // the reader holds v1 but has not filled yet
			require.NoError(t, tc.write(ctx, s))
			close(inner.proceed)
			assert.Equal(t, []byte("v1"), <-done)

			v, ok, err := s.Get(ctx, "cache:shop:1")
			require.NoError(t, err)
			assert.Equal(t, tc.want != nil, ok)
			if tc.want != nil {
				assert.Equal(t, tc.want, v)
			}
		})
	}
}

func TestLocalCopyExpiresAfterWindow(t *testing.T) {
	ctx := context.Background()
	inner := newInner(t)
	now := time.Unix(1_700_000_000, 0)
	s, err := New(Config{Inner: inner, LifeWindow: 100 * time.Millisecond, Now: func() time.Time { return now }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	require.NoError(t, inner.Set(ctx, "cache:shop:1", []byte("v1"), 0))
	v, _, _ := s.Get(ctx, "cache:shop:1")
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, inner.Set(ctx, "cache:shop:1", []byte("v2"), 0))
	now = now.Add(99 * time.Millisecond)
	v, _, _ = s.Get(ctx, "cache:shop:1")
	assert.Equal(t, []byte("v1"), v, "still inside the window")

	now = now.Add(time.Millisecond)
	v, _, _ = s.Get(ctx, "cache:shop:1")
	assert.Equal(t, []byte("v2"), v, "window elapsed")
}

func TestLocalCopyExpiresInRealTime(t *testing.T) {
	ctx := context.Background()
	inner := newInner(t)
	s := newTestStore(t, inner, 100*time.Millisecond)

	require.NoError(t, inner.Set(ctx, "k", []byte("v1"), 0))
	v, _, _ := s.Get(ctx, "k")
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, inner.Set(ctx, "k", []byte("v2"), 0))
	time.Sleep(250 * time.Millisecond)
	v, _, _ = s.Get(ctx, "k")
	assert.Equal(t, []byte("v2"), v)
}
