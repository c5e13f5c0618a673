package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	clientName  = "pairing-server"
	pingTimeout = 5 * time.Second
)

// Client wraps the go-redis client used for rate limiting and event fan-out.
type Client struct {
	*redis.Client
}

// NewClient parses redisURL and verifies the server answers before returning.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = clientName
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return &Client{client}, nil
}

// EventChannel is the pub/sub channel carrying connection events for one user.
func EventChannel(userID string) string {
	return "pairing:events:" + userID
}
