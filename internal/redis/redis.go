package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"

	"github.com/go-redis/redis/v8"
)

// Константы для префиксов ключей
const (
	KeyPrefixInsights  = "insights"
	KeyPrefixRateLimit = "ratelimit"
)

const (
	connectTimeout = 5 * time.Second
	scanBatch      = 100
)

// ErrNotFound - ключа нет в Redis
var ErrNotFound = errors.New("redis: key not found")

// Client представляет клиент Redis для кеша инсайтов и счетчиков rate limiting
type Client struct {
	client *redis.Client
	log    *logger.Logger
}

// Connect создает подключение к Redis и проверяет его ping-ом
func Connect(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.WithField("addr", rdb.Options().Addr).Info("Successfully connected to Redis")

	return &Client{
		client: rdb,
		log:    log,
	}, nil
}

// Close закрывает подключение к Redis
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Set сохраняет значение в JSON с TTL
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	c.log.WithFields(map[string]interface{}{
		"key":   key,
		"ttl":   ttl.String(),
		"bytes": len(data),
	}).Debug("Value set in Redis")
	return nil
}

// Get читает JSON-значение в dest. Отсутствующий ключ - ErrNotFound.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("key %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}

	c.log.WithField("key", key).Debug("Value retrieved from Redis")
	return nil
}

// Delete удаляет значение по ключу
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// DeleteByPrefix удаляет ключи по префиксу (SCAN + DEL пачками)
func (c *Client) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()

	var (
		batch   []string
		deleted int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys by prefix %s: %w", prefix, err)
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys by prefix %s: %w", prefix, err)
	}
	if err := flush(); err != nil {
		return err
	}

	if deleted > 0 {
		c.log.WithFields(map[string]interface{}{
			"prefix": prefix,
			"count":  deleted,
		}).Debug("Deleted Redis keys by prefix")
	}
	return nil
}

// Incr увеличивает счетчик и возвращает новое значение
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to incr key %s: %w", key, err)
	}
	return val, nil
}

// Expire устанавливает TTL для ключа
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ttl for key %s: %w", key, err)
	}
	return nil
}

// TTL возвращает оставшийся TTL для ключа
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get ttl for key %s: %w", key, err)
	}
	return ttl, nil
}

// GetInt читает счетчик. Отсутствующий ключ - ErrNotFound.
func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("key %s: %w", key, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get int value for key %s: %w", key, err)
	}
	return val, nil
}

// Health проверяет состояние Redis
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("redis client is not initialized")
	}
	return c.client.Ping(ctx).Err()
}

// GenerateKey генерирует ключ вида prefix:id
func GenerateKey(prefix, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}
