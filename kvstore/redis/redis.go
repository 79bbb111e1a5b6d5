package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/guardcache/kvstore"
)

var ErrNilClient = errors.New("redis store: nil client")

// DefaultOpTimeout bounds each store call when Config.OpTimeout is zero.
const DefaultOpTimeout = 3 * time.Second

const compareAndDeleteScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var compareAndDeleteLua = goredis.NewScript(compareAndDeleteScript)

type Store struct {
	rdb         goredis.UniversalClient
	closeClient bool
	opTimeout   time.Duration
}

var _ kvstore.Store = (*Store)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool          // set true only if this store exclusively owns the client
	OpTimeout   time.Duration // per call; 0 => DefaultOpTimeout, <0 => caller ctx only
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	timeout := cfg.OpTimeout
	if timeout == 0 {
		timeout = DefaultOpTimeout
	}
	return &Store{rdb: cfg.Client, closeClient: cfg.CloseClient, opTimeout: timeout}, nil
}

func (s *Store) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout < 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, s.opTimeout)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", kvstore.ErrUnavailable, err)
}

// ttl <= 0 is "no expiry" for the store; go-redis reads -1 as KEEPTTL.
func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	if b == nil {
		b = []byte{}
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rdb.Set(ctx, key, value, expiration(ttl)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, key, value, expiration(ttl)).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (s *Store) Del(ctx context.Context, key string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := compareAndDeleteLua.Run(ctx, s.rdb, []string{key}, expected).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return m, nil
}

func (s *Store) HSetAll(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	args := make([]any, 0, 2*len(fields))
	for f, v := range fields {
		args = append(args, f, v)
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, args...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if ttl <= 0 {
		// PERSIST reports false for keys without a TTL; existence is what callers need
		if ok, err = s.rdb.Persist(ctx, key).Result(); err == nil && !ok {
			var n int64
			n, err = s.rdb.Exists(ctx, key).Result()
			ok = n == 1
		}
	} else {
		ok, err = s.rdb.Expire(ctx, key, ttl).Result()
	}
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	d, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, unavailable(err)
	}
	switch {
	case d == -2:
		return 0, false, nil
	case d < 0:
		return 0, true, nil
	default:
		return d, true, nil
	}
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
