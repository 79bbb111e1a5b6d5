// Package middleware authenticates requests against a session.Store.
//
// Refresh runs on every request: it opens the request's auth scope, resolves
// the token (if any) and slides the session TTL. RequireAuth then rejects
// requests that reached it without a principal. Refresh must wrap
// RequireAuth:
//
//	h := middleware.Chain(
//	    middleware.Refresh(sessions),
//	    middleware.RequireAuth(middleware.WithExcludedPaths("/shop/**", "/user/login")),
//	)(mux)
package middleware

import (
	"net/http"
	"strings"

	"github.com/unkn0wn-root/guardcache"
	"github.com/unkn0wn-root/guardcache/internal/util"
	"github.com/unkn0wn-root/guardcache/session"
)

// Refresh never rejects a request. Missing, unknown, or unreadable tokens
// leave the request unauthenticated; store errors are logged.
func Refresh(store *session.Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, release := session.NewContext(r.Context())
			defer release()

			if token := tokenFrom(r.Header.Get(cfg.header)); token != "" && store != nil {
				authenticate(r.WithContext(ctx), store, token, cfg.log)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, store *session.Store, token string, log guardcache.Logger) {
	ctx := r.Context()
	p, ok, err := store.Lookup(ctx, token)
	if err != nil {
		log.Warn("session lookup failed", guardcache.Fields{"token": util.Redact(token), "err": err})
		return
	}
	if !ok {
		return
	}
	session.Attach(ctx, p)
	if _, err := store.Touch(ctx, token); err != nil {
		log.Warn("session refresh failed", guardcache.Fields{"token": util.Redact(token), "err": err})
	}
}

// tokenFrom accepts a bare token or one with a "Bearer " prefix.
func tokenFrom(v string) string {
	const scheme = "bearer"
	v = strings.TrimSpace(v)
	if len(v) >= len(scheme) && strings.EqualFold(v[:len(scheme)], scheme) &&
		(len(v) == len(scheme) || v[len(scheme)] == ' ') {
		v = strings.TrimSpace(v[len(scheme):])
	}
	return v
}
