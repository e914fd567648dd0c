package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"
	"shop-insights/internal/redis"
)

// CounterStore - счетчики окна (Redis)
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// Decision - результат проверки лимита
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	// Degraded - хранилище счетчиков недоступно, запрос пропущен без учета
	Degraded bool `json:"degraded,omitempty"`
}

// RateLimiter ограничивает число запросов к API инсайтов в фиксированном окне на клиента.
// При недоступном хранилище запросы пропускаются.
type RateLimiter struct {
	store   CounterStore
	log     *logger.Logger
	enabled bool
	limit   int64
	window  time.Duration
	prefix  string
	now     func() time.Time
}

// NewRateLimiter создает rate limiter. Без хранилища или с выключенной настройкой лимит не применяется.
func NewRateLimiter(store CounterStore, log *logger.Logger, cfg *config.RateLimitConfig) *RateLimiter {
	if store == nil || cfg == nil || !cfg.Enabled || cfg.Requests <= 0 || cfg.WindowSeconds <= 0 {
		return &RateLimiter{enabled: false, now: time.Now}
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = redis.KeyPrefixRateLimit
	}

	return &RateLimiter{
		store:   store,
		log:     log,
		enabled: true,
		limit:   int64(cfg.Requests),
		window:  time.Duration(cfg.WindowSeconds) * time.Second,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Allow учитывает запрос клиента и возвращает решение
func (r *RateLimiter) Allow(ctx context.Context, client string) Decision {
	now := r.now()
	if !r.enabled {
		return Decision{Allowed: true, Remaining: r.limit}
	}

	key := r.makeKey(client)
	count, err := r.store.Incr(ctx, key)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Rate limit store unavailable, request allowed")
		return Decision{Allowed: true, Remaining: r.limit, Degraded: true}
	}

	if count == 1 {
		if err := r.store.Expire(ctx, key, r.window); err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to set rate limit ttl")
		}
	}

	return Decision{
		Allowed:   count <= r.limit,
		Used:      count,
		Remaining: r.remaining(count),
		ResetAt:   now.Add(r.ttl(ctx, key)),
	}
}

// Usage возвращает состояние окна клиента без учета запроса
func (r *RateLimiter) Usage(ctx context.Context, client string) (Decision, error) {
	if !r.enabled {
		return Decision{Allowed: true, Remaining: r.limit}, nil
	}

	key := r.makeKey(client)
	count, err := r.store.GetInt(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return Decision{Allowed: true, Remaining: r.limit}, nil
		}
		return Decision{}, fmt.Errorf("failed to read rate limit usage: %w", err)
	}

	return Decision{
		Allowed:   count < r.limit,
		Used:      count,
		Remaining: r.remaining(count),
		ResetAt:   r.now().Add(r.ttl(ctx, key)),
	}, nil
}

func (r *RateLimiter) ttl(ctx context.Context, key string) time.Duration {
	ttl, err := r.store.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		if err != nil {
			r.log.WithError(err).WithField("key", key).Warn("Failed to get rate limit ttl")
		}
		return r.window
	}
	return ttl
}

func (r *RateLimiter) remaining(count int64) int64 {
	if rest := r.limit - count; rest > 0 {
		return rest
	}
	return 0
}

func (r *RateLimiter) makeKey(client string) string {
	return redis.GenerateKey(r.prefix, strings.ReplaceAll(client, ":", "_"))
}

// Limit возвращает лимит окна
func (r *RateLimiter) Limit() int64 {
	return r.limit
}

// Window возвращает длину окна
func (r *RateLimiter) Window() time.Duration {
	return r.window
}

// Enabled сообщает, включен ли лимит
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// ExtractClientIP получает IP клиента из заголовков прокси или RemoteAddr
func ExtractClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
