package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper pairs a Redis client with a circuit breaker, the pattern used
// throughout this module for any capability backed by a remote dependency:
// the concrete client is never called directly, only through Execute.
type RedisWrapper struct {
	client  *redis.Client
	cb      *CircuitBreaker
	logger  *zap.Logger
	name    string
	service string
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker. metrics may
// be nil; when set, the breaker is registered with it so its state changes
// are exported. Individual requests are not recorded.
func NewRedisWrapper(client *redis.Client, name, service string, logger *zap.Logger, metrics *MetricsCollector) *RedisWrapper {
	config := GetRedisConfig().ToConfig()
	cb := NewCircuitBreaker(name, config, logger)
	if metrics != nil {
		metrics.RegisterCircuitBreaker(name, service, cb)
	}

	return &RedisWrapper{client: client, cb: cb, logger: logger, name: name, service: service}
}

func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})
	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Exists(ctx, keys...)
		return result.Err()
	})
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Close wraps Redis Close
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// Client returns the underlying Redis client for operations not covered by the wrapper.
func (rw *RedisWrapper) Client() *redis.Client {
	return rw.client
}

// IsCircuitBreakerOpen reports whether the guarding breaker is open. This is
// the minimal capability-probe interface other components (health checkers,
// the fallback coordinator's strategy) depend on instead of a concrete type.
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}

// Breaker exposes the underlying breaker for health/metrics composition.
func (rw *RedisWrapper) Breaker() *CircuitBreaker {
	return rw.cb
}
