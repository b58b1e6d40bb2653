package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inventory-service/internal/notify"

	"github.com/go-redis/redis/v8"
)

// EventsChannel is the pub/sub channel change notifications are sent on
const EventsChannel = "inventory:events"

type Client struct {
	rdb     *redis.Client
	channel string
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, channel: EventsChannel}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// CachedResponse is a stored HTTP response replayed for a repeated
// Idempotency-Key
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// LoadResponse returns the response stored under an idempotency key.
// ok is false when nothing is stored.
func (c *Client) LoadResponse(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := c.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &resp, true, nil
}

// SaveResponse stores a response under an idempotency key with TTL
func (c *Client) SaveResponse(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, idempotencyKey(key), raw, ttl).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// Publish sends events to the pub/sub channel, one message per event
func (c *Client) Publish(ctx context.Context, events ...notify.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.Name, err)
		}
		pipe.Publish(ctx, c.channel, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish events: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
