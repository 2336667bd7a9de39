// cache.go — LRU-кэш метаданных файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/orgfiles/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "of_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "of_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// FileCache — LRU-кэш метаданных файлов с автоматическим TTL.
// Каждый экземпляр сервиса имеет собственный in-memory кэш.
// Кэшируются только метаданные; решение о доступе всегда
// вычисляется заново для текущего пользователя.
type FileCache struct {
	cache *expirable.LRU[uuid.UUID, *model.File]
}

// NewFileCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewFileCache(maxSize int, ttl time.Duration) *FileCache {
	cache := expirable.NewLRU[uuid.UUID, *model.File](maxSize, nil, ttl)
	return &FileCache{cache: cache}
}

// Get возвращает файл из кэша по ID.
// Возвращает (запись, true) при hit или (nil, false) при miss.
func (c *FileCache) Get(fileID uuid.UUID) (*model.File, bool) {
	val, ok := c.cache.Get(fileID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *FileCache) Set(fileID uuid.UUID, f *model.File) {
	c.cache.Add(fileID, f)
}

// Delete удаляет запись из кэша (инвалидация при изменении или удалении).
func (c *FileCache) Delete(fileID uuid.UUID) {
	c.cache.Remove(fileID)
}
