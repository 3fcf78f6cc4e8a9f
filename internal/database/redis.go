package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients separates blocking and subscribing traffic from ordinary
// commands: BLPOP and SUBSCRIBE each pin a connection for a long time.
type RedisClients struct {
	Main   *redis.Client
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clients := &RedisClients{}
	for _, slot := range []**redis.Client{&clients.Main, &clients.Queue, &clients.PubSub} {
		o := *opt
		c := redis.NewClient(&o)
		if err := c.Ping(ctx).Err(); err != nil {
			c.Close()
			clients.Close()
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		*slot = c
	}

	return clients, nil
}

func (r *RedisClients) Close() {
	for _, c := range []*redis.Client{r.Main, r.Queue, r.PubSub} {
		if c != nil {
			c.Close()
		}
	}
}
