package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

func TestProfileStore_WriteAndResolve(t *testing.T) {
	ctx := context.Background()
	s := NewProfileStore()

	stats := progress.New()
	stats.TotalXP = 40
	name := "@Alice"
	require.NoError(t, s.WriteProfile(ctx, "u1", profile.Update{Stats: stats, Username: &name}))

	p, err := s.ReadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Username)
	assert.Equal(t, 40, p.Stats.TotalXP)

	got, err := s.ResolveUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	other := "ALICE"
	assert.ErrorIs(t, s.WriteProfile(ctx, "u2", profile.Update{Username: &other}), profile.ErrUsernameTaken)

	_, err = s.ReadProfile(ctx, "nobody")
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)
}

func TestProfileStore_QueryRanked(t *testing.T) {
	ctx := context.Background()
	s := NewProfileStore()
	for i, xp := range []int{30, 10, 50, 20} {
		st := progress.New()
		st.TotalXP = xp
		s.Put(&profile.Profile{UserID: string(rune('a' + i)), Username: string(rune('a' + i)), Stats: *st})
	}

	all, err := s.QueryRanked(ctx, leaderboard.MetricTotalXP, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "c", all[0].UserID)

	page, err := s.QueryRanked(ctx, leaderboard.MetricTotalXP, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].UserID)
	assert.Equal(t, "d", page[1].UserID)

	empty, err := s.QueryRanked(ctx, leaderboard.MetricTotalXP, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProfileStore_ExpireDayStreaks(t *testing.T) {
	ctx := context.Background()
	s := NewProfileStore()
	today := timeutil.Date(2025, time.March, 10)
	yesterday := today.AddDate(0, 0, -1)
	stale := today.AddDate(0, 0, -4)

	fresh := progress.New()
	fresh.DayStreak = 3
	fresh.LastValidStreakDate = &yesterday
	old := progress.New()
	old.DayStreak = 9
	old.LastValidStreakDate = &stale
	s.Put(&profile.Profile{UserID: "fresh", Stats: *fresh})
	s.Put(&profile.Profile{UserID: "old", Stats: *old})

	n, err := s.ExpireDayStreaks(ctx, today)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	p, _ := s.ReadProfile(ctx, "old")
	assert.Zero(t, p.Stats.DayStreak)
	assert.Nil(t, p.Stats.LastValidStreakDate)
	p, _ = s.ReadProfile(ctx, "fresh")
	assert.Equal(t, 3, p.Stats.DayStreak)
}

func TestPrivateLeaderboardStore_Membership(t *testing.T) {
	ctx := context.Background()
	s := NewPrivateLeaderboardStore()
	lb, err := leaderboard.NewPrivateLeaderboard("lb1", "owner", "Group", "", 3, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, lb))

	require.NoError(t, s.AddMember(ctx, "lb1", "m1"))
	assert.ErrorIs(t, s.AddMember(ctx, "lb1", "m1"), leaderboard.ErrAlreadyMember)
	require.NoError(t, s.AddMember(ctx, "lb1", "m2"))
	assert.ErrorIs(t, s.AddMember(ctx, "lb1", "m3"), leaderboard.ErrLeaderboardFull)

	got, err := s.Get(ctx, "lb1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.MemberCount)

	assert.ErrorIs(t, s.RemoveMember(ctx, "lb1", "owner"), leaderboard.ErrCannotRemoveOwner)
	assert.ErrorIs(t, s.TransferOwnership(ctx, "lb1", "owner", "stranger"), leaderboard.ErrNewOwnerNotMember)
	assert.ErrorIs(t, s.TransferOwnership(ctx, "lb1", "m2", "m1"), leaderboard.ErrNotOwner)
	assert.ErrorIs(t, s.TransferOwnership(ctx, "lb1", "owner", "owner"), leaderboard.ErrAlreadyOwner)
	require.NoError(t, s.TransferOwnership(ctx, "lb1", "owner", "m1"))
	require.NoError(t, s.RemoveMember(ctx, "lb1", "owner"))

	boards, err := s.ListForUser(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "m1", boards[0].OwnerID)

	require.NoError(t, s.Delete(ctx, "lb1"))
	ok, err := s.IsMember(ctx, "lb1", "m2")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Get(ctx, "lb1")
	assert.ErrorIs(t, err, leaderboard.ErrLeaderboardNotFound)
}

func TestPrivateLeaderboardStore_ConcurrentTransfersKeepOneOwner(t *testing.T) {
	ctx := context.Background()
	s := NewPrivateLeaderboardStore()
	lb, err := leaderboard.NewPrivateLeaderboard("lb1", "owner", "Group", "", 5, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, lb))
	require.NoError(t, s.AddMember(ctx, "lb1", "m1"))
	require.NoError(t, s.AddMember(ctx, "lb1", "m2"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, target := range []string{"m1", "m2"} {
		i, target := i, target
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.TransferOwnership(ctx, "lb1", "owner", target)
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, leaderboard.ErrNotOwner)
		}
	}
	assert.Equal(t, 1, ok)

	got, err := s.Get(ctx, "lb1")
	require.NoError(t, err)
	assert.Contains(t, []string{"m1", "m2"}, got.OwnerID)
}

func TestProgressCache_Miss(t *testing.T) {
	c := NewProgressCache()
	p, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
}
