package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrCacheMiss возвращается, если ключа нет или срок его жизни истек
var ErrCacheMiss = errors.New("cache miss")

// Cache - хранилище готовых результатов с TTL (Redis или память процесса)
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

type memoryItem struct {
	data    []byte
	expires time.Time
}

// MemoryCache - кеш в памяти процесса, значения хранятся в JSON как в Redis
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryCache создает кеш в памяти
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

// Get читает значение в dest
func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	item, ok := c.items[key]
	if ok && !item.expires.IsZero() && !c.now().Before(item.expires) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(item.data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

// Set сохраняет значение; ttl <= 0 - без срока жизни
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	item := memoryItem{data: data}
	if ttl > 0 {
		item.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = item
	c.mu.Unlock()
	return nil
}

// DeleteByPrefix удаляет все ключи с префиксом
func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}
