package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ChannelCache tracks channels whose provisioning failure could not be
// resolved by auto-create. Suppressed channels are skipped by later flushes
// for a TTL instead of repeating the same unresolvable delivery.
type ChannelCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewChannelCache(client *redis.Client, ttl time.Duration) *ChannelCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ChannelCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ChannelCache) Close() error {
	return c.client.Close()
}

// IsChannelSuppressed reports whether the channel is currently marked as
// undeliverable.
func (c *ChannelCache) IsChannelSuppressed(ctx context.Context, channel string) (bool, error) {
	exists, err := c.client.Exists(ctx, suppressKey(channel)).Result()
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// SuppressChannel marks a channel as undeliverable for the given TTL.
func (c *ChannelCache) SuppressChannel(ctx context.Context, channel string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.SetEX(ctx, suppressKey(channel), "1", ttl).Err()
}

func suppressKey(channel string) string {
	return "slack:channel:suppressed:" + channel
}
