package command

import (
	"context"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// OWNER COMMANDS
// Remove member, transfer ownership and delete are owner-only.
// Leave is available to every member except the owner.
// ══════════════════════════════════════════════════════════════════════════════

// RemoveMemberCommand removes MemberID from a leaderboard.
type RemoveMemberCommand struct {
	LeaderboardID string
	RequesterID   string
	MemberID      string
}

// RemoveMemberHandler handles RemoveMemberCommand.
type RemoveMemberHandler struct {
	deps Deps
}

// NewRemoveMemberHandler creates a new handler.
func NewRemoveMemberHandler(deps Deps) *RemoveMemberHandler {
	return &RemoveMemberHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *RemoveMemberHandler) Handle(ctx context.Context, cmd RemoveMemberCommand) Result {
	err := h.remove(ctx, cmd)
	if err != nil {
		return h.deps.fail("RemoveMember", err,
			logger.LeaderboardID(cmd.LeaderboardID),
			logger.UserID(cmd.RequesterID),
		)
	}

	h.deps.Logger.Info("member removed",
		logger.LeaderboardID(cmd.LeaderboardID),
		logger.UserID(cmd.MemberID),
	)
	h.deps.publish(shared.NewLeaderboardEvent(shared.EventMemberRemoved, cmd.LeaderboardID, cmd.RequesterID, cmd.MemberID))
	return Ok()
}

func (h *RemoveMemberHandler) remove(ctx context.Context, cmd RemoveMemberCommand) error {
	if cmd.MemberID == "" {
		return leaderboard.ErrInvalidUserID
	}
	lb, err := h.deps.loadOwned(ctx, cmd.LeaderboardID, cmd.RequesterID)
	if err != nil {
		return err
	}
	if lb.IsOwner(cmd.MemberID) {
		return leaderboard.ErrCannotRemoveOwner
	}
	return h.deps.Store.RemoveMember(ctx, lb.ID, cmd.MemberID)
}

// ──────────────────────────────────────────────────────────────────────────────

// TransferOwnershipCommand hands the leaderboard over to an existing member.
type TransferOwnershipCommand struct {
	LeaderboardID string
	RequesterID   string
	NewOwnerID    string
}

// TransferOwnershipHandler handles TransferOwnershipCommand.
type TransferOwnershipHandler struct {
	deps Deps
}

// NewTransferOwnershipHandler creates a new handler.
func NewTransferOwnershipHandler(deps Deps) *TransferOwnershipHandler {
	return &TransferOwnershipHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *TransferOwnershipHandler) Handle(ctx context.Context, cmd TransferOwnershipCommand) Result {
	err := h.transfer(ctx, cmd)
	if err != nil {
		return h.deps.fail("TransferOwnership", err,
			logger.LeaderboardID(cmd.LeaderboardID),
			logger.UserID(cmd.RequesterID),
		)
	}

	h.deps.Logger.Info("ownership transferred",
		logger.LeaderboardID(cmd.LeaderboardID),
		logger.String("new_owner_id", cmd.NewOwnerID),
	)
	h.deps.publish(shared.NewLeaderboardEvent(shared.EventOwnershipTransferred, cmd.LeaderboardID, cmd.RequesterID, cmd.NewOwnerID))
	return Ok()
}

func (h *TransferOwnershipHandler) transfer(ctx context.Context, cmd TransferOwnershipCommand) error {
	if cmd.NewOwnerID == "" {
		return leaderboard.ErrInvalidUserID
	}
	lb, err := h.deps.loadOwned(ctx, cmd.LeaderboardID, cmd.RequesterID)
	if err != nil {
		return err
	}
	if lb.IsOwner(cmd.NewOwnerID) {
		return leaderboard.ErrAlreadyOwner
	}
	return h.deps.Store.TransferOwnership(ctx, lb.ID, cmd.RequesterID, cmd.NewOwnerID)
}

// ──────────────────────────────────────────────────────────────────────────────

// DeletePrivateLeaderboardCommand deletes a leaderboard and its memberships.
type DeletePrivateLeaderboardCommand struct {
	LeaderboardID string
	RequesterID   string
}

// DeletePrivateLeaderboardHandler handles DeletePrivateLeaderboardCommand.
type DeletePrivateLeaderboardHandler struct {
	deps Deps
}

// NewDeletePrivateLeaderboardHandler creates a new handler.
func NewDeletePrivateLeaderboardHandler(deps Deps) *DeletePrivateLeaderboardHandler {
	return &DeletePrivateLeaderboardHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *DeletePrivateLeaderboardHandler) Handle(ctx context.Context, cmd DeletePrivateLeaderboardCommand) Result {
	lb, err := h.deps.loadOwned(ctx, cmd.LeaderboardID, cmd.RequesterID)
	if err == nil {
		err = h.deps.Store.Delete(ctx, lb.ID)
	}
	if err != nil {
		return h.deps.fail("DeletePrivateLeaderboard", err,
			logger.LeaderboardID(cmd.LeaderboardID),
			logger.UserID(cmd.RequesterID),
		)
	}

	h.deps.Logger.Info("private leaderboard deleted", logger.LeaderboardID(cmd.LeaderboardID))
	h.deps.publish(shared.NewLeaderboardEvent(shared.EventLeaderboardDeleted, cmd.LeaderboardID, cmd.RequesterID, ""))
	return Ok()
}

// ──────────────────────────────────────────────────────────────────────────────

// LeaveLeaderboardCommand removes the caller from a leaderboard.
type LeaveLeaderboardCommand struct {
	LeaderboardID string
	UserID        string
}

// LeaveLeaderboardHandler handles LeaveLeaderboardCommand.
type LeaveLeaderboardHandler struct {
	deps Deps
}

// NewLeaveLeaderboardHandler creates a new handler.
func NewLeaveLeaderboardHandler(deps Deps) *LeaveLeaderboardHandler {
	return &LeaveLeaderboardHandler{deps: deps.withDefaults()}
}

// Handle executes the command.
func (h *LeaveLeaderboardHandler) Handle(ctx context.Context, cmd LeaveLeaderboardCommand) Result {
	err := h.leave(ctx, cmd)
	if err != nil {
		return h.deps.fail("LeaveLeaderboard", err,
			logger.LeaderboardID(cmd.LeaderboardID),
			logger.UserID(cmd.UserID),
		)
	}

	h.deps.Logger.Info("member left", logger.LeaderboardID(cmd.LeaderboardID), logger.UserID(cmd.UserID))
	h.deps.publish(shared.NewLeaderboardEvent(shared.EventMemberRemoved, cmd.LeaderboardID, cmd.UserID, cmd.UserID))
	return Ok()
}

func (h *LeaveLeaderboardHandler) leave(ctx context.Context, cmd LeaveLeaderboardCommand) error {
	if cmd.UserID == "" {
		return leaderboard.ErrInvalidUserID
	}
	lb, err := h.deps.Store.Get(ctx, cmd.LeaderboardID)
	if err != nil {
		return err
	}
	if lb.IsOwner(cmd.UserID) {
		return leaderboard.ErrOwnerCannotLeave
	}
	return h.deps.Store.RemoveMember(ctx, lb.ID, cmd.UserID)
}
