package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, c CacheRepo) {
	t.Helper()
	ctx := context.Background()
	key := "test:path:" + time.Now().Format(time.RFC3339Nano)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss, "пустой кеш")

	require.NoError(t, c.Set(ctx, key, []byte("value"), time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss, "ключ удалён")

	m := c.GetMetrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(2), m.CacheMisses)
	assert.Equal(t, int64(1), m.Sets)
	assert.InDelta(t, 1.0/3.0, m.HitRatio, 1e-9)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(100)
	require.NoError(t, err)
	defer c.Close()
	exercise(t, c)
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("NAV_TEST_REDIS")
	if addr == "" {
		t.Skip("NAV_TEST_REDIS не задан, пропускаем тест Redis")
	}
	c, err := NewRedisCache(CacheConfig{RedisURL: addr})
	if err != nil {
		t.Skipf("Redis недоступен: %v", err)
	}
	defer c.Close()
	exercise(t, c)
}
