package xp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	xpdomain "github.com/Emrys-Org/gaius-loyalty/internal/app/domain/xp"
	"github.com/Emrys-Org/gaius-loyalty/pkg/logger"
)

// RedisCache stores reconstructed ledgers in Redis with a TTL. All failures
// degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache wraps a Redis client as a ledger cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault("xp-cache")
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

func cacheKey(programID, address string) string {
	return "gaius:ledger:" + programID + ":" + address
}

// GetLedger fetches a cached ledger.
func (c *RedisCache) GetLedger(ctx context.Context, programID, address string) (xpdomain.Ledger, bool) {
	raw, err := c.client.Get(ctx, cacheKey(programID, address)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("ledger cache read failed")
		}
		return xpdomain.Ledger{}, false
	}
	var ledger xpdomain.Ledger
	if err := json.Unmarshal(raw, &ledger); err != nil {
		return xpdomain.Ledger{}, false
	}
	return ledger, true
}

// SetLedger stores a ledger under the cache TTL.
func (c *RedisCache) SetLedger(ctx context.Context, l xpdomain.Ledger) {
	raw, err := json.Marshal(l)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(l.ProgramID, l.Address), raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("ledger cache write failed")
	}
}

// Invalidate drops a cached ledger.
func (c *RedisCache) Invalidate(ctx context.Context, programID, address string) {
	if err := c.client.Del(ctx, cacheKey(programID, address)).Err(); err != nil {
		c.log.WithError(err).Debug("ledger cache invalidation failed")
	}
}
