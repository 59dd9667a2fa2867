package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:posts:"

// The first INCR of a window sets its expiry; a key left without one is
// given the full window again.
var admitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Redis shares window counters between instances. Keys expire with
// their window, so no cleanup is needed.
type Redis struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

func NewRedis(rdb *redis.Client, max int, window time.Duration) *Redis {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{rdb: rdb, max: max, window: window}
}

func (r *Redis) Admit(ctx context.Context, key string) (Decision, error) {
	res, err := admitScript.Run(ctx, r.rdb, []string{keyPrefix + key}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, res)
	}

	if res[0] <= int64(r.max) {
		return Decision{Allowed: true}, nil
	}
	return Decision{RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}
