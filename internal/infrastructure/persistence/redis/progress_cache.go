package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

// ProgressCache implements progress.LocalCache with one JSON document per
// user under ProgressKey.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates a progress cache. ttl <= 0 keeps entries forever.
func NewProgressCache(cache *Cache, ttl time.Duration) *ProgressCache {
	return &ProgressCache{cache: cache, ttl: max(ttl, 0)}
}

func (c *ProgressCache) Get(ctx context.Context, userID string) (*progress.UserProgress, error) {
	var p progress.UserProgress
	if err := c.cache.Get(ctx, ProgressKey(userID), &p); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cached progress: %w", err)
	}

	p.Normalize()
	return &p, nil
}

func (c *ProgressCache) Set(ctx context.Context, userID string, p *progress.UserProgress) error {
	if p == nil {
		return c.Clear(ctx, userID)
	}
	return c.cache.Set(ctx, ProgressKey(userID), p, c.ttl)
}

func (c *ProgressCache) Clear(ctx context.Context, userID string) error {
	return c.cache.Delete(ctx, ProgressKey(userID))
}
