// Package memory is a process-local kvstore.Store on top of ristretto.
//
// Every operation runs under one store mutex, so SetNX and CompareAndDelete
// are atomic for all goroutines of the process. Use it for single-instance
// deployments and tests; locks taken here do not coordinate across processes.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

var ErrClosed = errors.New("memory store: closed")

// entry overhead charged on top of the value size
const entryCost = 64

type Config struct {
	NumCounters int64 // 0 => 1e5
	MaxCost     int64 // bytes; 0 => 64 MiB
	BufferItems int64 // 0 => 64
}

type entry struct {
	val  []byte
	hash map[string]string // non-nil for hash keys
}

type Store struct {
	mu     sync.Mutex
	c      *rc.Cache
	closed bool
}

var _ kvstore.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.NumCounters < 0 || cfg.MaxCost < 0 || cfg.BufferItems < 0 {
		return nil, errors.New("memory store: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: coalesce(cfg.NumCounters, 100_000),
		MaxCost:     coalesce(cfg.MaxCost, 64<<20),
		BufferItems: coalesce(cfg.BufferItems, 64),
	})
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func coalesce(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func (e *entry) cost() int64 {
	n := int64(entryCost + len(e.val))
	for k, v := range e.hash {
		n += int64(len(k) + len(v))
	}
	return n
}

// lookup must be called with s.mu held.
func (s *Store) lookup(key string) (*entry, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := v.(*entry)
	if !ok {
		s.c.Del(key)
		return nil, false
	}
	return e, true
}

// put must be called with s.mu held.
func (s *Store) put(key string, e *entry, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	s.c.SetWithTTL(key, e, e.cost(), ttl)
	s.c.Wait()
	if _, ok := s.c.Get(key); !ok {
		return fmt.Errorf("%w: memory store rejected %q under cost pressure", kvstore.ErrUnavailable, key)
	}
	return nil
}

func (s *Store) check() error {
	if s.closed {
		return fmt.Errorf("%w: %w", kvstore.ErrUnavailable, ErrClosed)
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, false, err
	}
	e, ok := s.lookup(key)
	if !ok || e.hash != nil {
		return nil, false, nil
	}
	return append([]byte{}, e.val...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	return s.put(key, &entry{val: append([]byte{}, value...)}, ttl)
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	if err := s.put(key, &entry{val: append([]byte{}, value...)}, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.c.Del(key)
	s.c.Wait()
	return nil
}

func (s *Store) CompareAndDelete(_ context.Context, key string, expected []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	e, ok := s.lookup(key)
	if !ok || e.hash != nil || !bytes.Equal(e.val, expected) {
		return false, nil
	}
	s.c.Del(key)
	s.c.Wait()
	return true, nil
}

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	e, ok := s.lookup(key)
	if !ok || e.hash == nil {
		return map[string]string{}, nil
	}
	return maps.Clone(e.hash), nil
}

func (s *Store) HSetAll(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	merged := make(map[string]string, len(fields))
	keepTTL := time.Duration(0)
	if e, ok := s.lookup(key); ok && e.hash != nil {
		maps.Copy(merged, e.hash)
		if d, ok := s.c.GetTTL(key); ok {
			keepTTL = d
		}
	}
	maps.Copy(merged, fields)
	if ttl <= 0 {
		ttl = keepTTL
	}
	return s.put(key, &entry{hash: merged}, ttl)
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return false, err
	}
	e, ok := s.lookup(key)
	if !ok {
		return false, nil
	}
	if err := s.put(key, e, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return 0, false, err
	}
	if _, ok := s.lookup(key); !ok {
		return 0, false, nil
	}
	d, ok := s.c.GetTTL(key)
	if !ok {
		return 0, false, nil
	}
	return d, true, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.c.Close()
	return nil
}
