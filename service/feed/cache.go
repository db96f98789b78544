package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	frontPageKey = "feed:front"
	cacheTTL     = 5 * time.Minute
)

// Cache keeps the first page of the global feed in Redis so the landing
// page does not hit Postgres on every request. A nil *Cache is valid and
// means caching is disabled; every method is a no-op then.
type Cache struct {
	client *redis.Client
}

// NewCacheFromEnv connects to REDIS_ADDR, or returns nil when it is unset
// or unreachable. The application must behave identically either way.
func NewCacheFromEnv() *Cache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		log.Println("Redis unreachable, feed cache disabled:", err)
		return nil
	}

	log.Println("Feed cache connected to", addr)
	return &Cache{client: client}
}

// FrontPage returns the cached first page of the global feed, or nil on a
// miss.
func (c *Cache) FrontPage(ctx context.Context) (*Page, error) {
	if c == nil {
		return nil, nil
	}
	result, err := c.client.Get(ctx, frontPageKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal([]byte(result), &page); err != nil {
		return nil, fmt.Errorf("corrupt cached feed page: %w", err)
	}
	return &page, nil
}

func (c *Cache) SetFrontPage(ctx context.Context, page Page) error {
	if c == nil {
		return nil
	}
	pageJSON, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, frontPageKey, pageJSON, cacheTTL).Err()
}

// Invalidate drops the cached front page. Called after any post mutation.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, frontPageKey).Err()
}
