package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/AdolfoEscobar473/hospital/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// AttemptLimiter throttles repeated login attempts per key.
type AttemptLimiter interface {
	// Allow counts one attempt and reports whether it is within budget.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset clears the counter, e.g. after a successful login.
	Reset(ctx context.Context, key string) error
}

// RedisThrottle is a fixed-window AttemptLimiter shared by all API replicas.
type RedisThrottle struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	prefix string
}

func NewRedisThrottle(rdb *redis.Client, max int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, max: max, window: window, prefix: "login_attempts:"}
}

func (t *RedisThrottle) key(k string) string {
	return t.prefix + strings.ToLower(strings.TrimSpace(k))
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	ok, _, err := utils.HitFixedWindow(ctx, t.rdb, t.key(key), t.max, t.window)
	return ok, err
}

func (t *RedisThrottle) Reset(ctx context.Context, key string) error {
	return utils.ClearWindow(ctx, t.rdb, t.key(key))
}
