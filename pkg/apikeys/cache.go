package apikeys

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

const (
	localCacheSize = 4096
	localCacheTTL  = 30 * time.Second
	redisCacheTTL  = 5 * time.Minute
	redisKeyPrefix = "apikey:hash:"
)

// IdentityCache caches hash-to-identity lookups in front of the database.
// It is two-tiered: a small in-process LRU absorbs hot keys, and an optional
// Redis tier shares entries across instances. Both tiers are best effort;
// a cache failure is logged and treated as a miss.
type IdentityCache struct {
	local  *lru.LRU[string, *Identity]
	redis  *redis.Client
	logger *logrus.Logger
}

// NewIdentityCache creates a cache. redisClient may be nil, leaving only the
// in-process tier active.
func NewIdentityCache(redisClient *redis.Client, logger *logrus.Logger) *IdentityCache {
	return &IdentityCache{
		local:  lru.NewLRU[string, *Identity](localCacheSize, nil, localCacheTTL),
		redis:  redisClient,
		logger: logger,
	}
}

// Get returns the cached identity for a key hash, if present.
func (c *IdentityCache) Get(ctx context.Context, hash string) (*Identity, bool) {
	if identity, ok := c.local.Get(hash); ok {
		return identity, true
	}

	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, redisKeyPrefix+hash).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("api key cache read failed")
		}
		return nil, false
	}
	identity := &Identity{}
	if err := json.Unmarshal(data, identity); err != nil {
		c.logger.WithError(err).Warn("api key cache entry corrupt")
		return nil, false
	}
	c.local.Add(hash, identity)
	return identity, true
}

// Put stores an identity under its key hash in both tiers.
func (c *IdentityCache) Put(ctx context.Context, hash string, identity *Identity) {
	c.local.Add(hash, identity)

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+hash, data, redisCacheTTL).Err(); err != nil {
		c.logger.WithError(err).Warn("api key cache write failed")
	}
}

// Invalidate drops a key hash from both tiers. Called on key deletion so a
// revoked key stops verifying immediately.
func (c *IdentityCache) Invalidate(ctx context.Context, hash string) {
	c.local.Remove(hash)

	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, redisKeyPrefix+hash).Err(); err != nil {
		c.logger.WithError(err).Warn("api key cache invalidation failed")
	}
}
