package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS[1] window key; ARGV: now ms, window ms, limit, member.
// Returns {allowed, count, oldest ms}.
var slidingWindow = redis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
local n = redis.call('ZCARD', KEYS[1])
if n < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return {1, n + 1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, n, tonumber(oldest[2])}
`)

type Redis struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedis(rdb redis.Scripter, prefix string, limit int, window time.Duration) *Redis {
	if prefix == "" {
		prefix = "ratelimit:login:"
	}
	return &Redis{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	res, err := slidingWindow.Run(ctx, r.rdb,
		[]string{r.prefix + key},
		now.UnixMilli(),
		r.window.Milliseconds(),
		r.limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis: sliding window: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis: sliding window: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return Decision{Allowed: true, Remaining: r.limit - int(res[1])}, nil
	}
	retry := time.UnixMilli(res[2]).Add(r.window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Decision{RetryAfter: retry}, nil
}
