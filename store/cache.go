package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/umbra-intel/shrike/tool"
)

// ResultCache is an optional Redis-backed TTL cache for tool results.
// Dark-web fetches are slow and flaky, so repeating an identical call within
// the TTL serves the stored envelope instead.
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewResultCache connects to Redis at addr. A zero ttl defaults to five
// minutes.
func NewResultCache(addr string, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResultCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// CacheKey derives a stable key from a tool name and its arguments.
func CacheKey(toolName string, args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", args))
	}
	sum := sha256.Sum256(append([]byte(toolName+"\x00"), raw...))
	return "shrike:tool:" + hex.EncodeToString(sum[:])
}

// Get returns the cached result for key, or nil on a miss. Redis errors are
// treated as misses.
func (c *ResultCache) Get(ctx context.Context, key string) *tool.Result {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var res tool.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil
	}
	return &res
}

// Set stores a result under key. Only successful results are cached so
// transient failures get retried.
func (c *ResultCache) Set(ctx context.Context, key string, res *tool.Result) {
	if res == nil || !res.Success {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, key, raw, c.ttl)
}

func (c *ResultCache) Close() error {
	return c.rdb.Close()
}
