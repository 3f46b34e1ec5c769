package command

import (
	"context"
	"strings"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD MEMBER COMMAND
// Any member may invite another user by username.
// ══════════════════════════════════════════════════════════════════════════════

// AddMemberCommand contains the invite data.
type AddMemberCommand struct {
	LeaderboardID string
	RequesterID   string
	Username      string
}

// Validate validates the command.
func (c AddMemberCommand) Validate() error {
	if c.RequesterID == "" {
		return leaderboard.ErrInvalidUserID
	}
	if c.LeaderboardID == "" {
		return leaderboard.ErrLeaderboardNotFound
	}
	if strings.TrimSpace(profile.NormalizeUsername(c.Username)) == "" {
		return leaderboard.ErrInvalidUsername
	}
	return nil
}

// AddMemberHandler handles AddMemberCommand.
type AddMemberHandler struct {
	deps Deps
}

// NewAddMemberHandler creates a new handler.
func NewAddMemberHandler(deps Deps) *AddMemberHandler {
	return &AddMemberHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *AddMemberHandler) Handle(ctx context.Context, cmd AddMemberCommand) Result {
	target, err := h.check(ctx, cmd)
	if err == nil {
		// The store re-checks capacity and duplicates under a row lock.
		err = h.deps.Store.AddMember(ctx, cmd.LeaderboardID, target.UserID)
	}
	if err != nil {
		return h.deps.fail("AddMember", err,
			logger.LeaderboardID(cmd.LeaderboardID),
			logger.UserID(cmd.RequesterID),
		)
	}

	h.deps.Logger.Info("member added",
		logger.LeaderboardID(cmd.LeaderboardID),
		logger.UserID(target.UserID),
	)
	h.deps.publish(shared.NewLeaderboardEvent(shared.EventMemberAdded, cmd.LeaderboardID, cmd.RequesterID, target.UserID))

	return Ok()
}

// check runs the preconditions in order: leaderboard exists, requester is a
// member, username resolves to a named profile, target accepts invites,
// leaderboard has room, target is not yet a member.
func (h *AddMemberHandler) check(ctx context.Context, cmd AddMemberCommand) (*profile.Profile, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	lb, err := h.deps.Store.Get(ctx, cmd.LeaderboardID)
	if err != nil {
		return nil, err
	}

	isMember, err := h.deps.Store.IsMember(ctx, lb.ID, cmd.RequesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, leaderboard.ErrNotMember
	}

	target, err := h.deps.Profiles.ResolveUsername(ctx, profile.NormalizeUsername(cmd.Username))
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, leaderboard.ErrUserNotFound
		}
		return nil, err
	}
	if !target.HasUsername() {
		return nil, leaderboard.ErrUserNotFound
	}

	if target.Visibility.BlockInvites {
		return nil, leaderboard.ErrInvitesDisabled
	}

	if lb.IsFull() {
		return nil, leaderboard.ErrLeaderboardFull
	}

	already, err := h.deps.Store.IsMember(ctx, lb.ID, target.UserID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, leaderboard.ErrAlreadyMember
	}

	return target, nil
}
