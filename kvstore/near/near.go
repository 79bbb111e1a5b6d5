// Package near wraps a kvstore.Store with a process-local read cache.
//
// String Get hits are kept in bigcache for one short life window, so a hot key
// read by many requests costs one round trip per window instead of one per
// request. Every write or delete issued through the wrapper drops the local
// copy, and a read that raced with such a write does not refill it. Writes
// made by other processes become visible after at most one life window.
// Hashes, TTL queries and misses always go to the inner store.
package near

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

var ErrNilInner = errors.New("near store: nil inner store")

const (
	// local entry: tag(1) | stored at, unix nanos (8) | value
	tagValue  byte = 'v'
	headerLen      = 1 + 8

	stripes = 64
)

type Config struct {
	Inner              kvstore.Store
	LifeWindow         time.Duration // 0 => 1s
	CleanWindow        time.Duration // 0 => bigcache default; memory reclaim only
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
	CloseInner         bool
	Now                func() time.Time // nil => time.Now
}

// stripe orders local fills against writes for the keys hashed onto it.
type stripe struct {
	mu  sync.Mutex
	gen uint64
}

type Store struct {
	inner      kvstore.Store
	local      *bc.BigCache
	window     time.Duration
	now        func() time.Time
	closeInner bool

	stripes [stripes]stripe
}

var _ kvstore.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Inner == nil {
		return nil, ErrNilInner
	}
	window := cfg.LifeWindow
	if window <= 0 {
		window = time.Second
	}
	// freshness is checked per read; bigcache's own window only reclaims memory
	// and has one second resolution
	conf := bc.DefaultConfig(max(window, time.Second))
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	local, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		inner:      cfg.Inner,
		local:      local,
		window:     window,
		now:        now,
		closeInner: cfg.CloseInner,
	}, nil
}

func (s *Store) stripeFor(key string) *stripe {
	return &s.stripes[xxhash.Sum64String(key)%stripes]
}

// forget drops the local copy and invalidates fills already in flight.
// Writers call it before and after the inner write.
func (s *Store) forget(key string) {
	st := s.stripeFor(key)
	st.mu.Lock()
	st.gen++
	// ErrEntryNotFound is the common case; other errors only mean nothing was cached
	_ = s.local.Delete(key)
	st.mu.Unlock()
}

// cached returns the local copy if it is younger than the life window.
// bigcache itself only evicts on its clean sweep.
func (s *Store) cached(key string) ([]byte, bool) {
	b, err := s.local.Get(key)
	if err != nil || len(b) < headerLen || b[0] != tagValue {
		return nil, false
	}
	at := time.Unix(0, int64(binary.BigEndian.Uint64(b[1:headerLen])))
	if s.now().Sub(at) >= s.window {
		return nil, false
	}
	return append([]byte{}, b[headerLen:]...), true
}

func (s *Store) fill(key string, gen uint64, v []byte) {
	buf := make([]byte, headerLen, headerLen+len(v))
	buf[0] = tagValue
	binary.BigEndian.PutUint64(buf[1:headerLen], uint64(s.now().UnixNano()))
	buf = append(buf, v...)

	st := s.stripeFor(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return // a write landed while we were reading
	}
	_ = s.local.Set(key, buf) // local cache is best-effort
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := s.cached(key); ok {
		return v, true, nil
	}
	st := s.stripeFor(key)
	st.mu.Lock()
	gen := st.gen
	st.mu.Unlock()

	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	s.fill(key, gen, v)
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.forget(key)
	defer s.forget(key)
	return s.inner.Set(ctx, key, value, ttl)
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.forget(key)
	defer s.forget(key)
	return s.inner.SetNX(ctx, key, value, ttl)
}

func (s *Store) Del(ctx context.Context, key string) error {
	s.forget(key)
	defer s.forget(key)
	return s.inner.Del(ctx, key)
}

func (s *Store) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	s.forget(key)
	defer s.forget(key)
	return s.inner.CompareAndDelete(ctx, key, expected)
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.inner.HGetAll(ctx, key)
}

func (s *Store) HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	return s.inner.HSetAll(ctx, key, fields, ttl)
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.inner.Expire(ctx, key, ttl)
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	return s.inner.TTL(ctx, key)
}

// Stats exposes bigcache hit/miss counters of the local layer.
func (s *Store) Stats() bc.Stats { return s.local.Stats() }

func (s *Store) Close(ctx context.Context) error {
	err := s.local.Close()
	if s.closeInner {
		if ierr := s.inner.Close(ctx); ierr != nil {
			return ierr
		}
	}
	return err
}
