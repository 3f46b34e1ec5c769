package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

type countingSource struct {
	hidden map[string]struct{}
	calls  int

	// during runs inside HiddenUserIDs after the set was read
	during func()
}

func (s *countingSource) HiddenUserIDs(context.Context) (map[string]struct{}, error) {
	s.calls++
	defer func() {
		if s.during != nil {
			s.during()
		}
	}()
	out := make(map[string]struct{}, len(s.hidden))
	for id := range s.hidden {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *countingSource) QueryRanked(context.Context, leaderboard.Metric, int, int) ([]leaderboard.Entry, error) {
	return []leaderboard.Entry{{UserID: "u1", TotalXP: 10}}, nil
}

// unreachableCache points at a closed port so every command fails fast.
func unreachableCache() *Cache {
	return NewCacheFromClient(goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}))
}

// liveCache returns a cache on REDIS_ADDR, skipping the test when unset.
func liveCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client)
}

func TestConfig_Addr(t *testing.T) {
	cfg := Config{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "progress:u42", ProgressKey("u42"))
}

func TestCache_EmptyKey(t *testing.T) {
	c := unreachableCache()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	_, _, err := c.Load(ctx, VersionedSet{})
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	_, err = c.Store(ctx, VersionedSet{Key: "k", Marker: "m"}, 0, nil, time.Minute)
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}

func TestHiddenSetCache_FallsBackWhenRedisDown(t *testing.T) {
	src := &countingSource{hidden: map[string]struct{}{"u2": {}}}
	h := NewHiddenSetCache(src, unreachableCache(), time.Minute, nil)

	hidden, err := h.HiddenUserIDs(context.Background())
	require.NoError(t, err)
	assert.Contains(t, hidden, "u2")
	assert.Equal(t, 1, src.calls)

	entries, err := h.QueryRanked(context.Background(), leaderboard.MetricTotalXP, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHiddenSetCache_Live(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()
	src := &countingSource{hidden: map[string]struct{}{"u2": {}, "u5": {}}}
	h := NewHiddenSetCache(src, c, time.Minute, nil)

	first, err := h.HiddenUserIDs(ctx)
	require.NoError(t, err)
	second, err := h.HiddenUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)

	src.hidden = map[string]struct{}{}
	require.NoError(t, h.Invalidate(ctx))

	third, err := h.HiddenUserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, third)
	assert.Equal(t, 2, src.calls)

	// An empty set is still served from cache
	_, err = h.HiddenUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestHiddenSetCache_ReloadRacingInvalidateIsNotCached(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()
	src := &countingSource{hidden: map[string]struct{}{}}
	h := NewHiddenSetCache(src, c, time.Minute, nil)

	// The user opts out while the first reader is still loading the old set.
	src.during = func() {
		src.during = nil
		src.hidden = map[string]struct{}{"u7": {}}
		require.NoError(t, h.Invalidate(ctx))
	}

	stale, err := h.HiddenUserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := h.HiddenUserIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, fresh, "u7")
	assert.Equal(t, 2, src.calls)
}

func TestProgressCache_Live(t *testing.T) {
	c := NewProgressCache(liveCache(t), 0)
	ctx := context.Background()

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := progress.New()
	p.TotalXP = 120
	p.DayStreak = 3
	require.NoError(t, c.Set(ctx, "u1", p))

	got, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 120, got.TotalXP)
	assert.Equal(t, 3, got.DayStreak)

	require.NoError(t, c.Clear(ctx, "u1"))
	got, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
