// Package redisrevoke keeps revoked session credential ids in Redis so every
// server instance sees the same revocation list.
package redisrevoke

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-spotify-link/token"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "link:revoked:"

var _ token.RevokedTokenCache = (*Cache)(nil)

type Cache struct {
	client  goredis.UniversalClient
	nowFunc func() time.Time
}

func New(client goredis.UniversalClient) *Cache {
	return &Cache{client: client, nowFunc: time.Now}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*Cache, *goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("redisrevoke.Connect ParseURL: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redisrevoke.Connect Ping: %w", err)
	}
	return New(client), client, nil
}

// Add stores jti until exp. Redis expires the key, so Cleanup has nothing
// to do.
func (c *Cache) Add(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(c.nowFunc())
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, keyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redisrevoke.Add: %w", err)
	}
	return nil
}

func (c *Cache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redisrevoke.IsRevoked: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) Cleanup() {}
