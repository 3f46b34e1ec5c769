package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/infrastructure/persistence/memory"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

type fixture struct {
	store    *memory.PrivateLeaderboardStore
	profiles *memory.ProfileStore
	deps     Deps
}

func newFixture() *fixture {
	f := &fixture{
		store:    memory.NewPrivateLeaderboardStore(),
		profiles: memory.NewProfileStore(),
	}
	f.deps = Deps{
		Store:    f.store,
		Profiles: f.profiles,
		Clock:    timeutil.NewFixedClock(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)),
		Logger:   logger.Nop(),
	}

	f.profiles.Put(&profile.Profile{UserID: "owner", Username: "owner"})
	f.profiles.Put(&profile.Profile{UserID: "alice", Username: "alice"})
	f.profiles.Put(&profile.Profile{UserID: "carol", Username: "carol"})
	f.profiles.Put(&profile.Profile{UserID: "dave", Username: "dave"})
	f.profiles.Put(&profile.Profile{UserID: "bob", Username: "bob", Visibility: profile.Visibility{BlockInvites: true}})
	f.profiles.Put(&profile.Profile{UserID: "anon"})
	return f
}

// board creates a leaderboard owned by "owner" with the given capacity.
func (f *fixture) board(t *testing.T, maxMembers int) string {
	t.Helper()
	res := NewCreatePrivateLeaderboardHandler(f.deps, maxMembers).Handle(context.Background(), CreatePrivateLeaderboardCommand{
		OwnerID: "owner",
		Name:    "  Study group  ",
	})
	require.True(t, res.Success, res.Error)
	return res.Leaderboard.ID
}

func (f *fixture) add(lbID, requester, username string) Result {
	return NewAddMemberHandler(f.deps).Handle(context.Background(), AddMemberCommand{
		LeaderboardID: lbID,
		RequesterID:   requester,
		Username:      username,
	})
}

func (f *fixture) isMember(t *testing.T, lbID, userID string) bool {
	t.Helper()
	ok, err := f.store.IsMember(context.Background(), lbID, userID)
	require.NoError(t, err)
	return ok
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE
// ══════════════════════════════════════════════════════════════════════════════

func TestCreatePrivateLeaderboard(t *testing.T) {
	f := newFixture()
	h := NewCreatePrivateLeaderboardHandler(f.deps, 0)

	res := h.Handle(context.Background(), CreatePrivateLeaderboardCommand{OwnerID: "owner", Name: " Group ", Description: "weekly"})
	require.True(t, res.Success)
	require.NotNil(t, res.Leaderboard)
	assert.NotEmpty(t, res.Leaderboard.ID)
	assert.Equal(t, "Group", res.Leaderboard.Name)
	assert.Equal(t, leaderboard.DefaultMaxMembers, res.Leaderboard.MaxMembers)
	assert.True(t, f.isMember(t, res.Leaderboard.ID, "owner"))

	bad := h.Handle(context.Background(), CreatePrivateLeaderboardCommand{OwnerID: "owner", Name: "   "})
	assert.False(t, bad.Success)
	assert.Equal(t, leaderboard.ErrInvalidName.Message, bad.Error)
	assert.Nil(t, bad.Leaderboard)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADD MEMBER
// ══════════════════════════════════════════════════════════════════════════════

func TestAddMember_Failures(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)

	tests := []struct {
		name      string
		lb        string
		requester string
		username  string
		msg       string
	}{
		{"missing username", lb, "owner", " ", leaderboard.ErrInvalidUsername.Message},
		{"unknown leaderboard", "nope", "owner", "alice", leaderboard.ErrLeaderboardNotFound.Message},
		{"requester not a member", lb, "carol", "alice", leaderboard.ErrNotMember.Message},
		{"unknown username", lb, "owner", "zed", leaderboard.ErrUserNotFound.Message},
		{"invites blocked", lb, "owner", "bob", leaderboard.ErrInvitesDisabled.Message},
		{"already a member", lb, "owner", "owner", leaderboard.ErrAlreadyMember.Message},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.add(tt.lb, tt.requester, tt.username)
			assert.False(t, res.Success)
			assert.Equal(t, tt.msg, res.Error)
		})
	}
}

func TestAddMember_Success(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)

	res := f.add(lb, "owner", "@Alice")
	require.True(t, res.Success, res.Error)
	assert.True(t, f.isMember(t, lb, "alice"))

	// любой участник может приглашать
	res = f.add(lb, "alice", "carol")
	require.True(t, res.Success, res.Error)
	assert.True(t, f.isMember(t, lb, "carol"))
}

func TestAddMember_CapacityCheckedBeforeDuplicate(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 3)

	require.True(t, f.add(lb, "owner", "alice").Success)
	require.True(t, f.add(lb, "owner", "carol").Success)

	full := f.add(lb, "owner", "dave")
	assert.Equal(t, leaderboard.ErrLeaderboardFull.Message, full.Error)

	dup := f.add(lb, "owner", "alice")
	assert.Equal(t, leaderboard.ErrLeaderboardFull.Message, dup.Error)
}

func TestAddMember_StoreFailureIsGeneric(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)
	f.store.FailWith = errors.New("connection reset by peer")

	res := f.add(lb, "owner", "alice")
	assert.False(t, res.Success)
	assert.Equal(t, GenericFailureMessage, res.Error)
}

// ══════════════════════════════════════════════════════════════════════════════
// OWNER COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func TestRemoveMember(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)
	require.True(t, f.add(lb, "owner", "alice").Success)
	require.True(t, f.add(lb, "owner", "carol").Success)
	h := NewRemoveMemberHandler(f.deps)
	ctx := context.Background()

	res := h.Handle(ctx, RemoveMemberCommand{LeaderboardID: lb, RequesterID: "alice", MemberID: "carol"})
	assert.Equal(t, leaderboard.ErrNotOwner.Message, res.Error)

	res = h.Handle(ctx, RemoveMemberCommand{LeaderboardID: lb, RequesterID: "owner", MemberID: "owner"})
	assert.Equal(t, "Cannot remove owner. Transfer ownership first.", res.Error)

	res = h.Handle(ctx, RemoveMemberCommand{LeaderboardID: lb, RequesterID: "owner", MemberID: "dave"})
	assert.Equal(t, leaderboard.ErrMemberNotFound.Message, res.Error)

	res = h.Handle(ctx, RemoveMemberCommand{LeaderboardID: lb, RequesterID: "owner", MemberID: "carol"})
	require.True(t, res.Success, res.Error)
	assert.False(t, f.isMember(t, lb, "carol"))
	assert.True(t, f.isMember(t, lb, "alice"))
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)
	require.True(t, f.add(lb, "owner", "alice").Success)
	h := NewTransferOwnershipHandler(f.deps)
	ctx := context.Background()

	res := h.Handle(ctx, TransferOwnershipCommand{LeaderboardID: lb, RequesterID: "alice", NewOwnerID: "alice"})
	assert.Equal(t, leaderboard.ErrNotOwner.Message, res.Error)

	res = h.Handle(ctx, TransferOwnershipCommand{LeaderboardID: lb, RequesterID: "owner", NewOwnerID: "carol"})
	assert.Equal(t, leaderboard.ErrNewOwnerNotMember.Message, res.Error)

	res = h.Handle(ctx, TransferOwnershipCommand{LeaderboardID: lb, RequesterID: "owner", NewOwnerID: "owner"})
	assert.Equal(t, leaderboard.ErrAlreadyOwner.Message, res.Error)

	res = h.Handle(ctx, TransferOwnershipCommand{LeaderboardID: lb, RequesterID: "owner", NewOwnerID: "alice"})
	require.True(t, res.Success, res.Error)

	got, err := f.store.Get(ctx, lb)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerID)
	assert.Equal(t, 2, got.MemberCount)
	assert.True(t, f.isMember(t, lb, "owner"))
}

func TestDeletePrivateLeaderboard(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)
	require.True(t, f.add(lb, "owner", "alice").Success)
	h := NewDeletePrivateLeaderboardHandler(f.deps)
	ctx := context.Background()

	res := h.Handle(ctx, DeletePrivateLeaderboardCommand{LeaderboardID: lb, RequesterID: "alice"})
	assert.Equal(t, leaderboard.ErrNotOwner.Message, res.Error)

	res = h.Handle(ctx, DeletePrivateLeaderboardCommand{LeaderboardID: lb, RequesterID: "owner"})
	require.True(t, res.Success, res.Error)

	_, err := f.store.Get(ctx, lb)
	assert.ErrorIs(t, err, leaderboard.ErrLeaderboardNotFound)
	assert.False(t, f.isMember(t, lb, "alice"))

	again := h.Handle(ctx, DeletePrivateLeaderboardCommand{LeaderboardID: lb, RequesterID: "owner"})
	assert.Equal(t, leaderboard.ErrLeaderboardNotFound.Message, again.Error)
}

func TestLeaveLeaderboard(t *testing.T) {
	f := newFixture()
	lb := f.board(t, 0)
	require.True(t, f.add(lb, "owner", "alice").Success)
	h := NewLeaveLeaderboardHandler(f.deps)
	ctx := context.Background()

	res := h.Handle(ctx, LeaveLeaderboardCommand{LeaderboardID: lb, UserID: "owner"})
	assert.Equal(t, leaderboard.ErrOwnerCannotLeave.Message, res.Error)

	res = h.Handle(ctx, LeaveLeaderboardCommand{LeaderboardID: lb, UserID: "alice"})
	require.True(t, res.Success, res.Error)
	assert.False(t, f.isMember(t, lb, "alice"))

	res = h.Handle(ctx, LeaveLeaderboardCommand{LeaderboardID: lb, UserID: "alice"})
	assert.Equal(t, leaderboard.ErrMemberNotFound.Message, res.Error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func TestUpdatePreferences(t *testing.T) {
	f := newFixture()
	inv := &countingInvalidator{}
	h := NewUpdatePreferencesHandler(f.profiles, inv, logger.Nop())
	ctx := context.Background()
	yes := true

	res := h.Handle(ctx, UpdatePreferencesCommand{UserID: "alice", HideFromGlobal: &yes})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, inv.calls)

	res = h.Handle(ctx, UpdatePreferencesCommand{UserID: "alice", BlockInvites: &yes})
	require.True(t, res.Success, res.Error)

	p, err := f.profiles.ReadProfile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, p.Visibility.HideFromGlobal)
	assert.True(t, p.Visibility.BlockInvites)

	hidden, err := f.profiles.HiddenUserIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, hidden, "alice")
}

func TestUpdatePreferences_Username(t *testing.T) {
	f := newFixture()
	inv := &countingInvalidator{}
	h := NewUpdatePreferencesHandler(f.profiles, inv, logger.Nop())
	ctx := context.Background()

	name := "@new_name"
	res := h.Handle(ctx, UpdatePreferencesCommand{UserID: "anon", Username: &name})
	require.True(t, res.Success, res.Error)
	assert.Zero(t, inv.calls)

	p, err := f.profiles.ReadProfile(ctx, "anon")
	require.NoError(t, err)
	assert.Equal(t, "new_name", p.Username)

	taken := "ALICE"
	res = h.Handle(ctx, UpdatePreferencesCommand{UserID: "anon", Username: &taken})
	assert.Equal(t, profile.ErrUsernameTaken.Message, res.Error)

	bad := "a!"
	res = h.Handle(ctx, UpdatePreferencesCommand{UserID: "anon", Username: &bad})
	assert.Equal(t, profile.ErrInvalidUsername.Message, res.Error)
}
