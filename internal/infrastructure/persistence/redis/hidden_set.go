package redis

import (
	"context"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/pkg/logger"
)

// DefaultHiddenSetTTL bounds how stale the cached hidden set may get when an
// invalidation is missed.
const DefaultHiddenSetTTL = 5 * time.Minute

var hiddenSet = VersionedSet{
	Key:     KeyHiddenUsers,
	Marker:  KeyHiddenLoaded,
	Version: KeyHiddenVersion,
}

// HiddenSetCache is a leaderboard.RankingSource that caches HiddenUserIDs in
// a Redis set. Ranking queries pass through to the wrapped source.
// Redis failures fall back to the source.
type HiddenSetCache struct {
	source leaderboard.RankingSource
	cache  *Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewHiddenSetCache wraps source.
func NewHiddenSetCache(source leaderboard.RankingSource, cache *Cache, ttl time.Duration, log *logger.Logger) *HiddenSetCache {
	if ttl <= 0 {
		ttl = DefaultHiddenSetTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HiddenSetCache{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: log.With(logger.Component("hidden_set_cache")),
	}
}

// HiddenUserIDs serves the set from Redis while the marker key is alive and
// reloads it from the source otherwise. A reload that raced with Invalidate
// is returned to the caller but not cached.
func (h *HiddenSetCache) HiddenUserIDs(ctx context.Context) (map[string]struct{}, error) {
	members, ok, err := h.cache.Load(ctx, hiddenSet)
	if err != nil {
		h.logger.Warn("hidden set read failed", logger.Err(err))
		return h.source.HiddenUserIDs(ctx)
	}
	if ok {
		hidden := make(map[string]struct{}, len(members))
		for _, id := range members {
			hidden[id] = struct{}{}
		}
		return hidden, nil
	}

	version, verr := h.cache.CurrentVersion(ctx, hiddenSet)

	hidden, err := h.source.HiddenUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		h.logger.Warn("hidden set version read failed", logger.Err(verr))
		return hidden, nil
	}

	ids := make([]string, 0, len(hidden))
	for id := range hidden {
		ids = append(ids, id)
	}
	stored, err := h.cache.Store(ctx, hiddenSet, version, ids, h.ttl)
	switch {
	case err != nil:
		h.logger.Warn("hidden set refresh failed", logger.Err(err))
	case !stored:
		h.logger.Debug("hidden set changed during reload, not cached")
	}
	return hidden, nil
}

// QueryRanked delegates to the wrapped source.
func (h *HiddenSetCache) QueryRanked(ctx context.Context, m leaderboard.Metric, limit, offset int) ([]leaderboard.Entry, error) {
	return h.source.QueryRanked(ctx, m, limit, offset)
}

// Invalidate drops the cached set so the next read reloads it, and voids any
// reload already in progress.
func (h *HiddenSetCache) Invalidate(ctx context.Context) error {
	return h.cache.Bump(ctx, hiddenSet)
}
