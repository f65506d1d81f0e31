// Package cache implements the content-addressed exact-match response cache
// on a shared Redis store. There is deliberately no in-process fallback: a
// per-worker cache would give callers cross-worker consistency illusions.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis with a key prefix and a default TTL. Cache failures are
// reported as misses; they never fail a request.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to the shared store at redisURL. The prefix namespaces all
// keys; ttl bounds entry lifetime.
func New(redisURL, prefix string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		rdb:    redis.NewClient(opts),
		prefix: strings.TrimRight(prefix, ":"),
		ttl:    ttl,
	}, nil
}

// keyTuple is the routing-relevant portion of a request. Field order is the
// canonical (alphabetical) key order of the hashed JSON; caller metadata is
// excluded by construction.
type keyTuple struct {
	Band     string `json:"band"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
}

// Key hashes the routing tuple into a deterministic cache key.
func Key(prompt, provider, model, band string) string {
	encoded, _ := json.Marshal(keyTuple{
		Band:     band,
		Model:    model,
		Prompt:   strings.TrimSpace(prompt),
		Provider: strings.ToLower(provider),
	})
	digest := sha256.Sum256(encoded)
	return "exact:" + hex.EncodeToString(digest[:])
}

func (c *Client) fullKey(key string) string {
	return c.prefix + ":" + key
}

// Get returns the cached payload, or ok=false on miss or any store error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.rdb.Get(ctx, c.fullKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a payload under key with the client's TTL. Best-effort.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.rdb.Set(ctx, c.fullKey(key), value, c.ttl).Err()
}

// Ping reports whether the shared store is reachable. Used by /v1/ready.
func (c *Client) Ping(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
