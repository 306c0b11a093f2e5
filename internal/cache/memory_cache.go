package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache локальный кеш процесса на ristretto. Используется, когда Redis не настроен.
type MemoryCache struct {
	cache *ristretto.Cache
	counters
}

// NewMemoryCache создаёт кеш примерно на maxEntries записей
func NewMemoryCache(maxEntries int64) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// стоимость записи = 1, MaxCost считается в записях
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &MemoryCache{cache: c}, nil
}

// Get получает значение по ключу
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		m.miss()
		return nil, ErrCacheMiss
	}
	m.hit()
	return v.([]byte), nil
}

// Set сохраняет значение; запись видна сразу после возврата
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.cache.SetWithTTL(key, value, 1, ttl)
	m.cache.Wait()
	m.sets.Add(1)
	return nil
}

// Delete удаляет ключ
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

// Close останавливает фоновые горутины ristretto
func (m *MemoryCache) Close() error {
	m.cache.Close()
	return nil
}

// GetMetrics возвращает снимок метрик
func (m *MemoryCache) GetMetrics() CacheMetrics {
	return m.snapshot()
}
