package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/punchamoorthee/feeledger/internal/domain"
)

// CachedDirectory is a read-through Redis cache in front of another Directory.
// Redis failures degrade to direct lookups; misses on the backing directory
// are never cached.
type CachedDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedDirectory(next Directory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(kind domain.Kind, payerID string) string {
	return fmt.Sprintf("feeledger:payer:%s:%s", kind, payerID)
}

func (c *CachedDirectory) Lookup(ctx context.Context, kind domain.Kind, payerID string) (Payer, error) {
	key := cacheKey(kind, payerID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p Payer
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			return p, nil
		}
		c.logger.Warn("discarding corrupt payer cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("payer cache read", slog.String("key", key), slog.Any("error", err))
	}

	p, err := c.next.Lookup(ctx, kind, payerID)
	if err != nil {
		return Payer{}, err
	}
	data, err := json.Marshal(p)
	if err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("payer cache write", slog.String("key", key), slog.Any("error", err))
		}
	}
	return p, nil
}

// Invalidate drops a cached payer, e.g. after the portal edits the record.
func (c *CachedDirectory) Invalidate(ctx context.Context, kind domain.Kind, payerID string) error {
	return c.client.Del(ctx, cacheKey(kind, payerID)).Err()
}
