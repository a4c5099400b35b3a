package apikeys

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBackedCaches(t *testing.T) (*IdentityCache, *IdentityCache) {
	t.Helper()
	server := miniredis.RunT(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	newClient := func() *redis.Client {
		return redis.NewClient(&redis.Options{Addr: server.Addr()})
	}
	return NewIdentityCache(newClient(), logger), NewIdentityCache(newClient(), logger)
}

func TestIdentityCache(t *testing.T) {
	ctx := context.Background()
	identity := &Identity{
		APIKeyID:       "key-1",
		OwnerID:        "user-1",
		OrganizationID: "org-1",
		ProjectID:      "proj-1",
		EnvironmentID:  "env-1",
	}

	t.Run("local tier round trip", func(t *testing.T) {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		cache := NewIdentityCache(nil, logger)

		_, ok := cache.Get(ctx, "hash-1")
		assert.False(t, ok)

		cache.Put(ctx, "hash-1", identity)
		got, ok := cache.Get(ctx, "hash-1")
		require.True(t, ok)
		assert.Equal(t, identity, got)

		cache.Invalidate(ctx, "hash-1")
		_, ok = cache.Get(ctx, "hash-1")
		assert.False(t, ok)
	})

	t.Run("redis tier shares entries across instances", func(t *testing.T) {
		first, second := newRedisBackedCaches(t)

		first.Put(ctx, "hash-1", identity)
		got, ok := second.Get(ctx, "hash-1")
		require.True(t, ok)
		assert.Equal(t, identity, got)
	})

	t.Run("invalidation clears the shared tier", func(t *testing.T) {
		first, second := newRedisBackedCaches(t)

		first.Put(ctx, "hash-1", identity)
		first.Invalidate(ctx, "hash-1")

		_, ok := second.Get(ctx, "hash-1")
		assert.False(t, ok)
	})
}
