package memory

import (
	"context"
	"sync"

	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

// ProgressCache is an in-memory progress.LocalCache.
type ProgressCache struct {
	mu    sync.RWMutex
	items map[string]*progress.UserProgress

	// FailWith, when set, is returned by every call.
	FailWith error
}

// NewProgressCache creates an empty cache.
func NewProgressCache() *ProgressCache {
	return &ProgressCache{items: make(map[string]*progress.UserProgress)}
}

func (c *ProgressCache) Get(_ context.Context, userID string) (*progress.UserProgress, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.FailWith != nil {
		return nil, c.FailWith
	}
	return c.items[userID].Clone(), nil
}

func (c *ProgressCache) Set(_ context.Context, userID string, p *progress.UserProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailWith != nil {
		return c.FailWith
	}
	c.items[userID] = p.Clone()
	return nil
}

func (c *ProgressCache) Clear(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailWith != nil {
		return c.FailWith
	}
	delete(c.items, userID)
	return nil
}
