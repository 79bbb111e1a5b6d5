// Package session keeps login sessions as token-keyed hashes with a sliding
// TTL, and carries the authenticated principal through a request.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

const (
	DefaultPrefix = "login:token:"
	DefaultTTL    = 30 * time.Minute
)

var ErrNilStore = errors.New("session: nil store")

type Config struct {
	Store  kvstore.Store
	Prefix string        // "" => DefaultPrefix
	TTL    time.Duration // <= 0 => DefaultTTL
}

// Store issues and resolves session tokens. Tokens are opaque; they carry no
// claims and are only meaningful to the store that issued them.
type Store struct {
	kv     kvstore.Store
	prefix string
	ttl    time.Duration
}

func NewStore(cfg Config) (*Store, error) {
	if cfg.Store == nil {
		return nil, ErrNilStore
	}
	s := &Store{kv: cfg.Store, prefix: cfg.Prefix, ttl: cfg.TTL}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	return s, nil
}

func (s *Store) key(token string) string { return s.prefix + token }

// TTL reports the sliding session lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Issue stores p under a fresh random token and returns the token.
func (s *Store) Issue(ctx context.Context, p Principal) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.kv.HSetAll(ctx, s.key(token), p.Fields(), s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Lookup resolves a token. An unknown or expired token is (Principal{}, false, nil).
func (s *Store) Lookup(ctx context.Context, token string) (Principal, bool, error) {
	if token == "" {
		return Principal{}, false, nil
	}
	m, err := s.kv.HGetAll(ctx, s.key(token))
	if err != nil {
		return Principal{}, false, err
	}
	if len(m) == 0 {
		return Principal{}, false, nil
	}
	p, err := PrincipalFromFields(m)
	if err != nil {
		return Principal{}, false, err
	}
	return p, true, nil
}

// Touch restarts the session's TTL. It reports false if the session is gone.
func (s *Store) Touch(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return s.kv.Expire(ctx, s.key(token), s.ttl)
}

// Revoke deletes the session. Unknown tokens are not an error.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.kv.Del(ctx, s.key(token))
}
