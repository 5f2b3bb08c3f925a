package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisRateLimitPrefix = "soullink:rate_limit"

// checkoutWindowScript counts a hit and returns {hits, remaining window in ms}.
// A counter found without an expiry gets one again so it cannot pin a payer forever.
var checkoutWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  remaining = tonumber(ARGV[1])
end
return {hits, remaining}
`)

// RedisRateLimiter counts checkout attempts per payer in fixed Redis windows shared by
// every replica. Subjects arrive already normalised by the service.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultRedisRateLimitPrefix
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

func (r *RedisRateLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}

// ConsumeRateLimit records one attempt and reports the window's hit count and the seconds
// until it resets. A nil client, or a non-positive limit or window, disables limiting.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 || scope == "" || subject == "" {
		return 0, 0, nil
	}
	window = max(window, time.Second)

	raw, err := checkoutWindowScript.Run(ctx, r.client, []string{r.key(scope, subject)}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	hits, remaining, err := parseWindowReply(raw)
	if err != nil {
		return 0, 0, err
	}
	if remaining <= 0 {
		remaining = window
	}
	return int(hits), retryAfterSeconds(remaining), nil
}

func parseWindowReply(raw interface{}) (int64, time.Duration, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %T", raw)
	}
	hits, hitsOK := values[0].(int64)
	remainingMs, remainingOK := values[1].(int64)
	if !hitsOK || !remainingOK {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %v", values)
	}
	return hits, time.Duration(remainingMs) * time.Millisecond, nil
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
