package bracelets

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// CodeLock serializes assignment attempts per bracelet code with a
// redis SETNX key. It is independent of the session-level counters;
// the database uniqueness check inside the transaction is the final
// arbiter.
type CodeLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewCodeLock(client *redis.Client, ttl time.Duration) *CodeLock {
	return &CodeLock{Client: client, TTL: ttl}
}

func (c *CodeLock) key(code string) string {
	return "bracelet_lock:" + code
}

func (c *CodeLock) Acquire(ctx context.Context, code string) (bool, error) {
	return c.Client.SetNX(ctx, c.key(code), "1", c.TTL).Result()
}

func (c *CodeLock) Release(ctx context.Context, code string) error {
	_, err := c.Client.Del(ctx, c.key(code)).Result()
	return err
}
