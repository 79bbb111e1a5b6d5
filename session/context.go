package session

import (
	"context"
	"sync"
)

type scopeKey struct{}

// scope is the per-request auth slot. It lives in the request context and is
// emptied by the release func returned from NewContext.
type scope struct {
	mu       sync.RWMutex
	p        Principal
	set      bool
	released bool
}

// NewContext opens an empty auth scope for one request. Callers must invoke
// release when the request ends; afterwards the scope reports no principal
// even to goroutines still holding the context.
func NewContext(parent context.Context) (ctx context.Context, release func()) {
	s := &scope{}
	return context.WithValue(parent, scopeKey{}, s), s.release
}

func (s *scope) release() {
	s.mu.Lock()
	s.p = Principal{}
	s.set = false
	s.released = true
	s.mu.Unlock()
}

// Attach records p in the request's scope. It reports false if ctx has no
// open scope.
func Attach(ctx context.Context, p Principal) bool {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.p = p
	s.set = true
	return true
}

// FromContext returns the principal attached to the request, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return Principal{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p, s.set
}
