package leaderboard

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/domain/shared"
)

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("")
	require.NoError(t, err)
	assert.Equal(t, MetricTotalXP, m)

	m, err = ParseMetric("dayStreak")
	require.NoError(t, err)
	assert.Equal(t, MetricDayStreak, m)
	assert.Equal(t, "day_streak", m.Column())

	_, err = ParseMetric("karma")
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestSort_TieBreak(t *testing.T) {
	entries := []Entry{
		{UserID: "u3", Username: "", TotalXP: 100},
		{UserID: "u2", Username: "bob", TotalXP: 100},
		{UserID: "u1", Username: "alice", TotalXP: 100},
		{UserID: "u4", Username: "zed", TotalXP: 300},
		{UserID: "u0", Username: "bob", TotalXP: 100},
	}

	Sort(entries, MetricTotalXP)
	AssignRanks(entries, 1)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, []string{"u4", "u1", "u0", "u2", "u3"}, ids)
}

func TestSort_ByDayStreak(t *testing.T) {
	entries := []Entry{
		{UserID: "a", Username: "a", TotalXP: 900, DayStreak: 1},
		{UserID: "b", Username: "b", TotalXP: 10, DayStreak: 7},
	}

	Sort(entries, MetricDayStreak)

	assert.Equal(t, "b", entries[0].UserID)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		i, n     int
		from, to int
	}{
		{0, 10, 0, 3},
		{1, 10, 0, 4},
		{5, 10, 3, 8},
		{9, 10, 7, 10},
		{0, 1, 0, 1},
	}
	for _, tt := range tests {
		from, to := Window(tt.i, tt.n)
		assert.Equal(t, tt.from, from, "from for i=%d n=%d", tt.i, tt.n)
		assert.Equal(t, tt.to, to, "to for i=%d n=%d", tt.i, tt.n)
	}
}

func TestExcludeHidden(t *testing.T) {
	entries := []Entry{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}

	out := ExcludeHidden(entries, map[string]struct{}{"b": {}})

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].UserID)
	assert.Equal(t, "c", out[1].UserID)
	assert.Len(t, ExcludeHidden(entries, nil), 3)
}

func TestOverFetch(t *testing.T) {
	assert.Equal(t, 5, OverFetch(5, 0))
	assert.Equal(t, 10, OverFetch(5, 2))
	assert.Equal(t, 25, OverFetch(5, 20))
}

func TestNewPrivateLeaderboard(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	lb, err := NewPrivateLeaderboard("id", "owner", "  Study Group  ", "", 0, now)
	require.NoError(t, err)
	assert.Equal(t, "Study Group", lb.Name)
	assert.Equal(t, DefaultMaxMembers, lb.MaxMembers)
	assert.Equal(t, 1, lb.MemberCount)
	assert.True(t, lb.IsOwner("owner"))
	assert.False(t, lb.IsFull())

	_, err = NewPrivateLeaderboard("id", "owner", "   ", "", 50, now)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewPrivateLeaderboard("id", "owner", strings.Repeat("x", 51), "", 50, now)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = NewPrivateLeaderboard("id", "owner", "ok", strings.Repeat("d", 201), 50, now)
	assert.ErrorIs(t, err, ErrInvalidDescription)

	_, err = NewPrivateLeaderboard("id", "", "ok", "", 50, now)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestDomainErrors_Kinds(t *testing.T) {
	assert.True(t, shared.IsCapacity(ErrLeaderboardFull))
	assert.True(t, shared.IsForbidden(ErrNotMember))
	assert.True(t, shared.IsNotFound(ErrLeaderboardNotFound))
	assert.True(t, shared.IsConflict(ErrAlreadyMember))

	msg, ok := shared.UserMessage(ErrCannotRemoveOwner)
	assert.True(t, ok)
	assert.Equal(t, "Cannot remove owner. Transfer ownership first.", msg)
}
