// Package redis appends extracted links to a Redis list per run.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is used when Config.Prefix is empty.
const DefaultPrefix = "linkpipe:links"

// Config selects the server and list naming.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix names the list, which is <prefix>:<run-id>.
	Prefix string
	// TTL expires the list after the run. Zero keeps it forever.
	TTL time.Duration
}

// lister is the subset of *redis.Client the writer needs.
type lister interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Connect returns a client for cfg after a successful PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("output.redis.addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Writer pushes links onto the tail of the run list.
type Writer struct {
	client lister
	key    string
	ttl    time.Duration
}

// New returns a Writer for runID.
func New(client lister, cfg Config, runID string) (*Writer, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	return &Writer{client: client, key: Key(cfg.Prefix, runID), ttl: cfg.TTL}, nil
}

// Key returns the list key for a run.
func Key(prefix, runID string) string {
	if prefix = strings.TrimSuffix(prefix, ":"); prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":" + runID
}

// Write appends link with RPUSH.
func (w *Writer) Write(ctx context.Context, link string) error {
	if err := w.client.RPush(ctx, w.key, link).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", w.key, err)
	}
	return nil
}

// Close applies the TTL, if any. The client is owned by the caller.
func (w *Writer) Close(ctx context.Context) error {
	if w.ttl <= 0 {
		return nil
	}
	if err := w.client.Expire(ctx, w.key, w.ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", w.key, err)
	}
	return nil
}
