package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"shop-insights/internal/config"
	"shop-insights/internal/logger"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/go-redis/redis/v8"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis, context.Context) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	return &Client{client: rdb, log: log}, mr, context.Background()
}

func TestConnectSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: mr.Port(), DB: 0}

	client, err := Connect(cfg, log)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.RedisConfig{Host: "127.0.0.1", Port: "0", DB: 0}
	if _, err := Connect(cfg, log); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestCloseNil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Fatalf("expected nil error on nil client close, got %v", err)
	}
}

func TestGenerateKey(t *testing.T) {
	key := GenerateKey("prefix", "123")
	if key != "prefix:123" {
		t.Fatalf("unexpected key: %s", key)
	}
}

func TestSetGetDelete(t *testing.T) {
	client, mr, ctx := newTestClient(t)

	type payload struct {
		Value string
	}

	val := payload{Value: "data"}
	if err := client.Set(ctx, "key1", val, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var got payload
	if err := client.Get(ctx, "key1", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Value != val.Value {
		t.Fatalf("unexpected value: %+v", got)
	}

	if err := client.Delete(ctx, "key1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if mr.Exists("key1") {
		t.Fatalf("expected key removed")
	}
}

func TestGetMissingKey(t *testing.T) {
	client, _, ctx := newTestClient(t)
	var dest struct{}
	err := client.Get(ctx, "absent", &dest)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}
}

func TestGetCorruptedValue(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	_ = mr.Set("broken", "{not json")

	var dest map[string]string
	err := client.Get(ctx, "broken", &dest)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unmarshal error, got %v", err)
	}
}

func TestSetExpires(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	if err := client.Set(ctx, "short", "v", time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	var dest string
	if err := client.Get(ctx, "short", &dest); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired key to be missing, got %v", err)
	}
}

func TestDeleteByPrefix(t *testing.T) {
	client, mr, ctx := newTestClient(t)

	for i := 0; i < scanBatch+5; i++ {
		_ = mr.Set(GenerateKey(KeyPrefixInsights, fmt.Sprintf("category:%d", i)), "a")
	}
	_ = mr.Set(GenerateKey(KeyPrefixRateLimit, "10.0.0.1"), "c")

	if err := client.DeleteByPrefix(ctx, KeyPrefixInsights+":"); err != nil {
		t.Fatalf("delete by prefix failed: %v", err)
	}

	if mr.Exists(GenerateKey(KeyPrefixInsights, "category:0")) || mr.Exists(GenerateKey(KeyPrefixInsights, "category:104")) {
		t.Fatalf("expected insight keys removed")
	}
	if !mr.Exists(GenerateKey(KeyPrefixRateLimit, "10.0.0.1")) {
		t.Fatalf("expected rate limit key kept")
	}
}

func TestGetIntAndTTL(t *testing.T) {
	client, mr, ctx := newTestClient(t)

	client.client.Set(ctx, "counter", 5, 2*time.Second)

	val, err := client.GetInt(ctx, "counter")
	if err != nil {
		t.Fatalf("get int failed: %v", err)
	}
	if val != 5 {
		t.Fatalf("unexpected int value: %d", val)
	}

	ttl, err := client.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("ttl failed: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("expected positive ttl, got %v", ttl)
	}

	mr.FastForward(3 * time.Second)
	if _, err := client.GetInt(ctx, "counter"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired key, got %v", err)
	}
}

func TestIncrAndExpire(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	val, err := client.Incr(ctx, "hits")
	if err != nil || val != 1 {
		t.Fatalf("expected incr to 1, got %d err=%v", val, err)
	}
	if err := client.Expire(ctx, "hits", time.Second); err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := client.GetInt(ctx, "hits"); err == nil {
		t.Fatalf("expected key expired")
	}
}

func TestHealth(t *testing.T) {
	client, mr, ctx := newTestClient(t)
	if err := client.Health(ctx); err != nil {
		t.Fatalf("health failed: %v", err)
	}

	mr.Close()
	if err := client.Health(ctx); err == nil {
		t.Fatalf("expected health error after redis shutdown")
	}

	var nilClient *Client
	if err := nilClient.Health(ctx); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
