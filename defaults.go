package guardcache

import "time"

const (
	DefaultTTL            = 10 * time.Minute
	DefaultNegativeTTL    = 2 * time.Minute
	DefaultLockPrefix     = "lock:"
	DefaultLockTTL        = 10 * time.Second
	DefaultRetryInterval  = 50 * time.Millisecond
	DefaultLockWait       = 5 * time.Second
	DefaultRebuildTimeout = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// negativeTTL keeps the marker strictly shorter-lived than the value it
// stands in for. Zero means the ttl is too small for any shorter marker and
// no marker is written.
func negativeTTL(configured, ttl time.Duration) time.Duration {
	half := ttl / 2
	if half <= 0 {
		return 0
	}
	return min(configured, half)
}
