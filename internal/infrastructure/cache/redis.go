package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"openprotect-lab/internal/config"
	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

// Cache key constants for the console
const (
	// Dashboard read model written after every tick
	KeySnapshot = "console:snapshot"

	// Capped list of serialized server events, newest first
	KeyEventTimeline = "console:events"

	// Pub/sub channel mirroring the event timeline
	ChannelEvents = "console:events:live"

	// Rate limiting keys
	KeyRateLimitPrefix = "rate_limit:"

	// Scheduler keys
	KeySchedulerLock = "scheduler:lock:"
)

// DefaultTimelineLength bounds the archived event timeline
const DefaultTimelineLength = 500

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client      *redis.Client
	keyPrefix   string
	timelineLen int64
	logger      *logger.Logger
}

// NewRedis creates a new Redis client
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return NewRedisWithClient(client, cfg.KeyPrefix, log), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, keyPrefix string, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:      client,
		keyPrefix:   keyPrefix,
		timelineLen: DefaultTimelineLength,
		logger:      log,
	}
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

// key prepends the namespace prefix to a key
func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.key(key)).Result()
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Set stores a value in cache with optional TTL
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete removes keys from cache
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	prefixedKeys := make([]string, len(keys))
	for i, k := range keys {
		prefixedKeys[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixedKeys...).Err()
}

// SetNX sets a value only if the key does not exist (for distributed locks)
func (c *RedisCache) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), value, ttl).Result()
}

// Subscribe subscribes to channels
func (c *RedisCache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}

// StoreSnapshot writes the dashboard read model
func (c *RedisCache) StoreSnapshot(ctx context.Context, snapshot models.DashboardSnapshot) error {
	return c.SetJSON(ctx, KeySnapshot, snapshot, 0)
}

// GetSnapshot returns the last stored dashboard snapshot, or nil when none
// has been written yet
func (c *RedisCache) GetSnapshot(ctx context.Context) (*models.DashboardSnapshot, error) {
	var s models.DashboardSnapshot
	if err := c.GetJSON(ctx, KeySnapshot, &s); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// PublishEvent archives the event on the capped timeline and mirrors it on
// the live channel
func (c *RedisCache) PublishEvent(ctx context.Context, event *models.ServerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, c.key(KeyEventTimeline), data)
	pipe.LTrim(ctx, c.key(KeyEventTimeline), 0, c.timelineLen-1)
	pipe.Publish(ctx, c.key(ChannelEvents), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to archive event %s: %w", event.ID, err)
	}
	return nil
}

// RecentEvents returns up to limit archived events, newest first
func (c *RedisCache) RecentEvents(ctx context.Context, limit int64) ([]models.ServerEvent, error) {
	if limit <= 0 || limit > c.timelineLen {
		limit = c.timelineLen
	}
	raw, err := c.client.LRange(ctx, c.key(KeyEventTimeline), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]models.ServerEvent, 0, len(raw))
	for _, r := range raw {
		var e models.ServerEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			c.logger.Warn().Err(err).Msg("skipping undecodable archived event")
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// AcquireLock attempts to acquire a distributed lock
func (c *RedisCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, KeySchedulerLock+lockKey, "locked", ttl)
}

// ReleaseLock releases a distributed lock
func (c *RedisCache) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.Delete(ctx, KeySchedulerLock+lockKey)
}

// CheckRateLimit checks and increments the rate limit counter
// Returns (allowed, remaining, resetTime, error)
func (c *RedisCache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Time, error) {
	now := time.Now()
	windowKey := fmt.Sprintf("%s%s:%d", KeyRateLimitPrefix, key, now.Unix()/int64(window.Seconds()))

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, c.key(windowKey))
	pipe.Expire(ctx, c.key(windowKey), window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	resetTime := now.Add(window)

	return count <= limit, remaining, resetTime, nil
}
