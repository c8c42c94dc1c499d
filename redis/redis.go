package redis

import (
	"cms-workspace-publisher/internal/config"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var Ctx = context.Background()
var RedisClient *redis.Client

func InitRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr: config.AppConfig.RedisAddress,
	})
	_, err := RedisClient.Ping(Ctx).Result()
	if err != nil {
		log.Println("Redis not available. Running without Redis.")
		RedisClient = nil
		return
	}

	log.Println("Redis connected successfully.")
}

// Cache is a versioned-key cache: bumping a version key implicitly expires
// every cache entry built with the old version.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *Cache) GetVersion(ctx context.Context, key string) int64 {
	if c.client == nil {
		return 0
	}
	v, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *Cache) IncrementVersion(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		log.Printf("Failed to increment cache version %s: %v", key, err)
	}
}

// InvalidateContainer bumps the version key of one container page, so any
// cached rendering of it gets refetched.
func (c *Cache) InvalidateContainer(ctx context.Context, containerID uint64) {
	c.IncrementVersion(ctx, fmt.Sprintf("page:%d:version", containerID))
}

// EventPublisher broadcasts domain events on a redis channel.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

func (p *EventPublisher) Publish(ctx context.Context, event string, payload any) {
	if p.client == nil {
		return
	}
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		log.Printf("Failed to encode event %s: %v", event, err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		log.Printf("Failed to publish event %s: %v", event, err)
	}
}
