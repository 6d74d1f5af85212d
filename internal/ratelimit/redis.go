package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hatimhtm/portfolio-web/internal/xerrors"
)

// DefaultKeyPrefix namespaces limiter keys in a shared Redis.
const DefaultKeyPrefix = "portfolio:ratelimit:"

// fixedWindowScript checks and increments a counter in one round trip.
// KEYS[1] counter, KEYS[2] first-denial marker
// ARGV[1] limit, ARGV[2] window in ms
// Returns {allowed, count, pttl, firstDenial}.
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl <= 0 then ttl = window end
  local first = redis.call('SET', KEYS[2], '1', 'NX', 'PX', ttl)
  if first then return {0, count, ttl, 1} end
  return {0, count, ttl, 0}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local ttl = redis.call('PTTL', KEYS[1])
return {1, count, ttl, 0}
`)

// RedisWindow is a fixed-window limiter whose records live in Redis.
// Key expiry is the window itself, so Redis drops a record as soon as its
// window ends.
type RedisWindow struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisWindow)

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(rw *RedisWindow) {
		rw.prefix = prefix
	}
}

// WithRedisClock replaces time.Now when computing Decision.Reset.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(rw *RedisWindow) {
		if now != nil {
			rw.now = now
		}
	}
}

func NewRedisWindow(client redis.Scripter, opts ...RedisOption) *RedisWindow {
	rw := &RedisWindow{
		client: client,
		prefix: DefaultKeyPrefix,
		now:    time.Now,
	}
	for _, o := range opts {
		o(rw)
	}
	return rw
}

func (rw *RedisWindow) keys(id string) []string {
	// hash tag keeps both keys on one cluster slot
	base := rw.prefix + "{" + id + "}"
	return []string{base, base + ":denied"}
}

func (rw *RedisWindow) Decide(ctx context.Context, id string, p Policy) (Decision, error) {
	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	windowMS := p.Window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}

	res, err := fixedWindowScript.Run(ctx, rw.client, rw.keys(id), p.Limit, windowMS).Int64Slice()
	if err != nil {
		return Decision{}, xerrors.Wrapf(err, "ratelimit: redis decide %q", id)
	}
	if len(res) != 4 {
		return Decision{}, xerrors.Newf("ratelimit: unexpected redis reply length %d", len(res))
	}

	retry := time.Duration(res[2]) * time.Millisecond
	if retry < 0 {
		retry = 0
	}
	return Decision{
		Allowed:     res[0] == 1,
		Count:       int(res[1]),
		Limit:       p.Limit,
		Reset:       rw.now().Add(retry),
		RetryAfter:  retry,
		FirstDenial: res[3] == 1,
	}, nil
}

// Check makes a round trip to Redis. It satisfies health.Probe so the store
// can be reported on readiness while the guard keeps failing open.
func (rw *RedisWindow) Check(ctx context.Context) error {
	if err := fixedWindowScript.Exists(ctx, rw.client).Err(); err != nil {
		return xerrors.Wrap(err, "ratelimit: redis unreachable")
	}
	return nil
}

func (rw *RedisWindow) String() string {
	return fmt.Sprintf("redis(%s)", rw.prefix)
}
