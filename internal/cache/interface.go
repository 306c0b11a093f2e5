package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCacheMiss возвращается, когда ключа нет в кеше
var ErrCacheMiss = errors.New("cache miss")

// CacheRepo определяет интерфейс кеша результатов поиска пути.
//
// Использование:
//
//	c := NewMemoryCache(10000)
//	data, err := c.Get(ctx, "key")
//	err = c.Set(ctx, "key", data, 30*time.Second)
type CacheRepo interface {
	// Get получает значение по ключу. Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение с указанным TTL. TTL = 0 означает DefaultTTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ из кеша.
	Delete(ctx context.Context, key string) error

	// Close освобождает ресурсы кеша.
	Close() error

	// GetMetrics возвращает снимок метрик кеша.
	GetMetrics() CacheMetrics
}

// DefaultTTL время жизни записи по умолчанию
const DefaultTTL = 30 * time.Second

// CacheMetrics метрики кеша
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	Sets          int64   `json:"sets"`
	HitRatio      float64 `json:"hit_ratio"`
}

// counters общие счётчики реализаций
type counters struct {
	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
	sets     atomic.Int64
}

func (c *counters) hit() {
	c.requests.Add(1)
	c.hits.Add(1)
}

func (c *counters) miss() {
	c.requests.Add(1)
	c.misses.Add(1)
}

func (c *counters) snapshot() CacheMetrics {
	m := CacheMetrics{
		TotalRequests: c.requests.Load(),
		CacheHits:     c.hits.Load(),
		CacheMisses:   c.misses.Load(),
		Sets:          c.sets.Load(),
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(m.TotalRequests)
	}
	return m
}
