package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/formgate/formgate/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyCallback = "callback:%s:%s"

// Callback endpoints are internet-facing and unauthenticated until their
// signature check runs, so they get a per-source throttle.
const (
	callbackRate  = 10.0
	callbackBurst = 30
)

// CallbackLimiter throttles payment callback endpoints per client address.
// Without redis configured it admits everything.
type CallbackLimiter struct {
	bucket *TokenBucket
}

func NewCallbackLimiter(cfg config.Config) *CallbackLimiter {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return &CallbackLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &CallbackLimiter{bucket: NewTokenBucket(client)}
}

func (l *CallbackLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow consumes one token for the endpoint/source pair. Limiter errors admit
// the request; a redis outage must not drop payment confirmations.
func (l *CallbackLimiter) Allow(ctx context.Context, endpoint, source string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	key := fmt.Sprintf(keyCallback, strings.TrimSpace(endpoint), strings.TrimSpace(source))
	result, err := l.bucket.Allow(ctx, key, callbackRate, callbackBurst)
	if err != nil {
		return true, err
	}
	return result.Allowed, nil
}
