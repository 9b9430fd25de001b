package stats

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// LeaderboardCache — кеш таблицы лидеров с TTL. Чтение отдаёт возможно
// устаревшие данные и, если они просрочены, запускает фоновое обновление;
// флаг refreshing гарантирует, что одновременно выполняется не больше
// одного обновления. Фоновое обновление — best-effort: ошибка логируется
// и отбрасывается, кеш остаётся прежним.
type LeaderboardCache struct {
	store Store
	ttl   time.Duration
	size  int

	mu        sync.RWMutex
	entries   []*PlayerStats
	fetchedAt time.Time

	refreshing atomic.Bool
}

// NewLeaderboardCache создает кеш таблицы лидеров
func NewLeaderboardCache(store Store, ttl time.Duration, size int) *LeaderboardCache {
	return &LeaderboardCache{store: store, ttl: ttl, size: size}
}

// Top возвращает кешированную таблицу лидеров (возможно устаревшую) и при
// необходимости запускает обновление в фоне. Никогда не блокируется на
// запросе к хранилищу.
func (c *LeaderboardCache) Top() []*PlayerStats {
	c.mu.RLock()
	entries := c.entries
	stale := time.Since(c.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if stale {
		c.refreshIfIdle()
	}
	return entries
}

// refreshIfIdle запускает обновление, если оно ещё не выполняется
func (c *LeaderboardCache) refreshIfIdle() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		top, err := c.store.TopByChambersCompleted(ctx, c.size)
		if err != nil {
			log.Printf("[Leaderboard] ошибка обновления таблицы лидеров: %v", err)
			return
		}

		c.mu.Lock()
		c.entries = top
		c.fetchedAt = time.Now()
		c.mu.Unlock()
	}()
}
