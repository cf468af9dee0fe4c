package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyLatestSignals  = "edge:latest_signals"
	keyActiveFindings = "edge:active_findings"
	keyPendingActions = "edge:pending_actions"
)

// Cache stores serving-layer responses in Redis so dashboard polling does
// not hit Postgres on every request.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Option configures the cache.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New connects to Redis and verifies the connection.
func New(addr, password string, db int, opts ...Option) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("cache: empty redis address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	cache := &Cache{client: client, ttl: 30 * time.Second}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// GetLatestSignals returns the cached latest-signals response, or nil on miss.
func (c *Cache) GetLatestSignals(ctx context.Context) ([]byte, error) {
	return c.get(ctx, keyLatestSignals)
}

// SetLatestSignals caches the latest-signals response.
func (c *Cache) SetLatestSignals(ctx context.Context, body []byte) error {
	return c.set(ctx, keyLatestSignals, body)
}

// GetActiveFindings returns the cached active-findings response, or nil on miss.
func (c *Cache) GetActiveFindings(ctx context.Context) ([]byte, error) {
	return c.get(ctx, keyActiveFindings)
}

// SetActiveFindings caches the active-findings response.
func (c *Cache) SetActiveFindings(ctx context.Context, body []byte) error {
	return c.set(ctx, keyActiveFindings, body)
}

// GetPendingActions returns the cached pending-actions response, or nil on miss.
func (c *Cache) GetPendingActions(ctx context.Context) ([]byte, error) {
	return c.get(ctx, keyPendingActions)
}

// SetPendingActions caches the pending-actions response.
func (c *Cache) SetPendingActions(ctx context.Context, body []byte) error {
	return c.set(ctx, keyPendingActions, body)
}

// InvalidateFindings drops the findings entry after an ack or resolve.
func (c *Cache) InvalidateFindings(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyActiveFindings).Err()
}

// InvalidateActions drops the actions entry after a status change.
func (c *Cache) InvalidateActions(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyPendingActions).Err()
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	body, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Cache) set(ctx context.Context, key string, body []byte) error {
	if c == nil || c.client == nil {
		return nil
	}
	if len(body) == 0 {
		return nil
	}
	return c.client.Set(ctx, key, body, c.ttl).Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
