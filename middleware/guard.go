package middleware

import (
	"net/http"

	"github.com/unkn0wn-root/guardcache/session"
)

// RequireAuth answers 401 to requests without a principal, except on
// excluded paths.
func RequireAuth(opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.isExcluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := session.FromContext(r.Context()); !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain composes middlewares; the first one is outermost.
func Chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}
