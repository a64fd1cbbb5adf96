package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InFlightGuard serializes work on a key across processes.
type InFlightGuard interface {
	// Acquire reports whether the caller now holds key.
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisInFlightGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (g *redisInFlightGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.client.SetNX(ctx, g.prefix+":"+key, "1", g.ttl).Result()
}

func (g *redisInFlightGuard) Release(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.prefix+":"+key).Err()
}

type memoryInFlightGuard struct {
	mu     sync.Mutex
	held   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryInFlightGuard(ttl time.Duration) *memoryInFlightGuard {
	return &memoryInFlightGuard{
		held:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: time.Now().Add(ttl),
	}
}

func (g *memoryInFlightGuard) Acquire(_ context.Context, key string) (bool, error) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if exp, ok := g.held[key]; ok && exp.After(now) {
		return false, nil
	}

	g.held[key] = now.Add(g.ttl)
	if now.After(g.nextGC) {
		for k, exp := range g.held {
			if exp.Before(now) {
				delete(g.held, k)
			}
		}
		g.nextGC = now.Add(g.ttl)
	}
	return true, nil
}

func (g *memoryInFlightGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
	return nil
}

// NewInFlightGuard builds a Redis guard and falls back to in-memory on failure.
func NewInFlightGuard(addr, pass string, db int, ttl time.Duration) (InFlightGuard, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if addr == "" {
		return newMemoryInFlightGuard(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return newMemoryInFlightGuard(ttl), err
	}

	return &redisInFlightGuard{
		client: client,
		prefix: "netgiro:callback",
		ttl:    ttl,
	}, nil
}

const guardPollInterval = 25 * time.Millisecond

// CallbackGuard serializes callbacks per order. A duplicate delivered while
// another is in flight waits up to wait for the lock and then runs, so the
// handler's completion marker answers it. If the lock is still held after
// wait it gets 409 and the provider retries later. Guard errors let the
// request through.
func CallbackGuard(guard InFlightGuard, keyFn func(echo.Context) string, wait time.Duration, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if guard == nil {
				return next(c)
			}
			key := keyFn(c)
			if key == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			acquired, err := acquireWithin(ctx, guard, key, wait)
			if err != nil {
				logger.Warn("callback guard unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			if !acquired {
				logger.Info("callback already in flight", zap.String("key", key))
				return c.String(http.StatusConflict, "Callback already in progress")
			}
			defer func() {
				if err := guard.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.Warn("callback guard release failed", zap.String("key", key), zap.Error(err))
				}
			}()

			return next(c)
		}
	}
}

// acquireWithin retries Acquire until it succeeds, wait elapses or ctx ends.
func acquireWithin(ctx context.Context, guard InFlightGuard, key string, wait time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(guardPollInterval)
	defer ticker.Stop()

	for {
		acquired, err := guard.Acquire(ctx, key)
		if err != nil || acquired {
			return acquired, err
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		}
	}
}
