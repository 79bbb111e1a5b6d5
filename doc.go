// Package guardcache is a cache-aside client that guards a slow backing
// store against cache penetration and cache breakdown.
//
// Values are read through one of three interchangeable strategies:
//   - passthrough: misses load synchronously; confirmed absence is cached as a
//     short-lived negative marker so repeated misses never reach the loader.
//   - mutex: misses are rebuilt by the single holder of a distributed lock;
//     other callers wait and re-read, bounded by LockWait/MaxLockAttempts.
//     Callers in one process for the same key share one attempt.
//   - logical: entries carry an embedded expiry and are never evicted by the
//     store. Expired entries are returned stale while one rebuild runs on a
//     shared bounded executor. Keys must be pre-warmed (see Warm).
//
// Store layout:
//
//	<keyPrefix><id>   - framed value, or an empty negative marker
//	<lockPrefix><id>  - lock lease holding a random holder token
//
// Key prefixes must be distinct per entity type.
//
// Example:
//
//	c, _ := guardcache.New[Shop](guardcache.Options[Shop]{
//	    Store:    store,
//	    Codec:    codec.JSON[Shop]{},
//	    Strategy: guardcache.StrategyMutex,
//	})
//	shop, found, err := c.Query(ctx, "cache:shop:", id, loadShop, guardcache.QueryOptions{TTL: 30 * time.Minute})
package guardcache
