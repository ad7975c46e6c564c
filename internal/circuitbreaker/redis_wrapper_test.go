package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func TestRedisWrapper_NormalOperations(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	logger := zaptest.NewLogger(t)
	wrapper := NewRedisWrapper(client, "cache", "test-service", logger, nil)
	ctx := context.Background()

	result := wrapper.Ping(ctx)
	if result.Err() != nil {
		t.Errorf("Ping failed: %v", result.Err())
	}

	setResult := wrapper.Set(ctx, "test:key", "test:value", time.Minute)
	if setResult.Err() != nil {
		t.Errorf("Set failed: %v", setResult.Err())
	}

	getResult := wrapper.Get(ctx, "test:key")
	if getResult.Err() != nil {
		t.Errorf("Get failed: %v", getResult.Err())
	}
	if getResult.Val() != "test:value" {
		t.Errorf("Expected 'test:value', got '%s'", getResult.Val())
	}

	// Get non-existent key should return redis.Nil, not trip the breaker.
	nilResult := wrapper.Get(ctx, "nonexistent:key")
	if nilResult.Err() != redis.Nil {
		t.Errorf("Expected redis.Nil for non-existent key, got %v", nilResult.Err())
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed for redis.Nil")
	}

	existsResult := wrapper.Exists(ctx, "test:key")
	if existsResult.Err() != nil {
		t.Errorf("Exists failed: %v", existsResult.Err())
	}
	if existsResult.Val() != 1 {
		t.Errorf("Expected key to exist, got count %d", existsResult.Val())
	}

	delResult := wrapper.Del(ctx, "test:key")
	if delResult.Err() != nil {
		t.Errorf("Del failed: %v", delResult.Err())
	}
	if delResult.Val() != 1 {
		t.Errorf("Expected 1 deleted key, got %d", delResult.Val())
	}
}

func TestRedisWrapper_CircuitBreakerTriggering(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:9999"})
	defer client.Close()

	logger := zaptest.NewLogger(t)
	wrapper := NewRedisWrapper(client, "cache", "test-service", logger, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		result := wrapper.Ping(ctx)
		if result.Err() == nil {
			t.Error("Expected ping to fail against non-existent server")
		}
	}

	if !wrapper.IsCircuitBreakerOpen() {
		t.Error("Expected circuit breaker to be open after repeated failures")
	}

	result := wrapper.Get(ctx, "any:key")
	if result.Err() != ErrCircuitBreakerOpen {
		t.Errorf("Expected circuit breaker open error, got %v", result.Err())
	}
}

func TestRedisWrapper_RedisNilHandling(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	logger := zaptest.NewLogger(t)
	wrapper := NewRedisWrapper(client, "cache", "test-service", logger, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		result := wrapper.Get(ctx, "nonexistent:key")
		if result.Err() != redis.Nil {
			t.Errorf("Expected redis.Nil, got %v", result.Err())
		}
	}

	if wrapper.IsCircuitBreakerOpen() {
		t.Error("Circuit breaker should remain closed for redis.Nil results")
	}
}
