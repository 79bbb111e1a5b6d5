package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/guardcache/kvstore"
	"github.com/unkn0wn-root/guardcache/kvstore/kvstoretest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s, err := New(Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestRedisStoreSuite(t *testing.T) {
	var mr *miniredis.Miniredis
	kvstoretest.Run(t,
		func(t *testing.T) kvstore.Store {
			var s *Store
			s, mr = newTestStore(t)
			return s
		},
		func(_ *testing.T, d time.Duration) { mr.FastForward(d) },
	)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestTransportErrorsWrapUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	_, _, err := s.Get(ctx, "k")
	assert.True(t, errors.Is(err, kvstore.ErrUnavailable), "got %v", err)
	_, err = s.SetNX(ctx, "k", []byte("v"), time.Second)
	assert.True(t, errors.Is(err, kvstore.ErrUnavailable), "got %v", err)
	_, err = s.HGetAll(ctx, "k")
	assert.True(t, errors.Is(err, kvstore.ErrUnavailable), "got %v", err)
}

func TestCompareAndDeleteUsesStoredToken(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "lock:shop:1", []byte("token-a"), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// holder A's lease runs out and B takes over
	mr.FastForward(11 * time.Second)
	ok, err = s.SetNX(ctx, "lock:shop:1", []byte("token-b"), 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// A's late release must leave B's lock alone
	released, err := s.CompareAndDelete(ctx, "lock:shop:1", []byte("token-a"))
	require.NoError(t, err)
	assert.False(t, released)
	got, err := mr.Get("lock:shop:1")
	require.NoError(t, err)
	assert.Equal(t, "token-b", got)
}

func TestExpireWithoutTTLPersists(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	ok, err := s.Expire(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), mr.TTL("k"))

	// already persistent keys still report existence
	ok, err = s.Expire(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}
