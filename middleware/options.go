package middleware

import (
	"strings"

	"github.com/unkn0wn-root/guardcache"
)

// DefaultHeader carries the session token.
const DefaultHeader = "authorization"

type Option func(*config)

type config struct {
	header   string
	log      guardcache.Logger
	excluded []string
}

func newConfig(opts []Option) config {
	c := config{header: DefaultHeader, log: guardcache.NopLogger{}}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// WithHeader reads the token from a different header.
func WithHeader(name string) Option {
	return func(c *config) {
		if name != "" {
			c.header = name
		}
	}
}

func WithLogger(l guardcache.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithExcludedPaths lets matching requests through RequireAuth without a
// principal. A pattern is an exact path, or a prefix ending in "/**" that
// matches the prefix itself and everything below it.
func WithExcludedPaths(patterns ...string) Option {
	return func(c *config) {
		c.excluded = append(c.excluded, patterns...)
	}
}

func (c config) isExcluded(path string) bool {
	for _, p := range c.excluded {
		if prefix, ok := strings.CutSuffix(p, "/**"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}
