package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedCollections wraps a Collections source with a Redis read-through
// cache. Lookups check Redis first then fall back to the source; misses are
// never cached, so an unknown collection is re-queried every time.
type CachedCollections struct {
	source Collections
	rdb    *redis.Client
	ttl    time.Duration
}

// NewCachedCollections creates a cached wrapper around source.
func NewCachedCollections(source Collections, rdb *redis.Client, ttl time.Duration) *CachedCollections {
	return &CachedCollections{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
	}
}

func (c *CachedCollections) Info(ctx context.Context, collection string) (CollectionInfo, error) {
	// Try cache.
	data, err := c.rdb.Get(ctx, collectionKey(collection)).Bytes()
	if err == nil {
		var info CollectionInfo
		if json.Unmarshal(data, &info) == nil {
			return info, nil
		}
	}

	// Cache miss: read from source.
	info, err := c.source.Info(ctx, collection)
	if err != nil {
		return CollectionInfo{}, err
	}

	if data, err := json.Marshal(info); err == nil {
		c.rdb.Set(ctx, collectionKey(collection), data, c.ttl)
	}
	return info, nil
}

func collectionKey(collection string) string { return fmt.Sprintf("collection:%s", collection) }
