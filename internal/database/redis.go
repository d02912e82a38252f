package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions tunes the client used for run locks and event fan-out. Zero values
// keep the settings parsed from the URL.
type RedisOptions struct {
	PoolSize    int
	DialTimeout time.Duration
}

// ConnectRedis builds a client from url, applies opts and pings the server within
// the dial timeout.
func ConnectRedis(ctx context.Context, url string, opts RedisOptions) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if opts.PoolSize > 0 {
		options.PoolSize = opts.PoolSize
	}
	if opts.DialTimeout > 0 {
		options.DialTimeout = opts.DialTimeout
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, options.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return client, nil
}
