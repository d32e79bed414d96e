package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextmind-ai/app-verification/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisForTest(t *testing.T) *Client {
	return NewClient(testutil.RedisClient(t))
}

func TestClient_Ping(t *testing.T) {
	client := setupRedisForTest(t)

	result, err := client.Ping(context.Background()).Result()
	require.NoError(t, err)
	assert.Equal(t, "PONG", result)
}

func TestClient_SetGetDel(t *testing.T) {
	client := setupRedisForTest(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key", "value", time.Minute).Err())

	got, err := client.Get(ctx, "test:key").Result()
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	ttl, err := client.TTL(ctx, "test:key").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	deleted, err := client.Del(ctx, "test:key").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = client.Get(ctx, "test:key").Result()
	assert.True(t, errors.Is(err, redis.Nil))
}

func TestClient_RunScript(t *testing.T) {
	client := setupRedisForTest(t)
	ctx := context.Background()

	script := redis.NewScript(`return redis.call("INCRBY", KEYS[1], ARGV[1])`)

	for i := int64(1); i <= 3; i++ {
		got, err := client.RunScript(ctx, script, []string{"test:counter"}, 2).Int64()
		require.NoError(t, err)
		assert.Equal(t, i*2, got)
	}
}

func TestClient_PoolStats(t *testing.T) {
	client := setupRedisForTest(t)
	require.NoError(t, client.Ping(context.Background()).Err())

	stats := client.PoolStats()
	require.NotNil(t, stats)
	assert.GreaterOrEqual(t, stats.TotalConns, uint32(1))
}
