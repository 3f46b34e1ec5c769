package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE PRIVATE LEADERBOARD COMMAND
// The creator becomes the owner and the first member.
// ══════════════════════════════════════════════════════════════════════════════

// CreatePrivateLeaderboardCommand contains the data of a new leaderboard.
type CreatePrivateLeaderboardCommand struct {
	OwnerID     string
	Name        string
	Description string
}

// CreatePrivateLeaderboardResult carries the created leaderboard on success.
type CreatePrivateLeaderboardResult struct {
	Result
	Leaderboard *leaderboard.PrivateLeaderboard `json:"leaderboard,omitempty"`
}

// CreatePrivateLeaderboardHandler handles CreatePrivateLeaderboardCommand.
type CreatePrivateLeaderboardHandler struct {
	deps       Deps
	maxMembers int
}

// NewCreatePrivateLeaderboardHandler creates a new handler. maxMembers below 2
// falls back to leaderboard.DefaultMaxMembers.
func NewCreatePrivateLeaderboardHandler(deps Deps, maxMembers int) *CreatePrivateLeaderboardHandler {
	return &CreatePrivateLeaderboardHandler{deps: deps.withDefaults(), maxMembers: maxMembers}
}

// Handle executes the command.
func (h *CreatePrivateLeaderboardHandler) Handle(ctx context.Context, cmd CreatePrivateLeaderboardCommand) CreatePrivateLeaderboardResult {
	lb, err := leaderboard.NewPrivateLeaderboard(
		uuid.NewString(),
		cmd.OwnerID,
		cmd.Name,
		cmd.Description,
		h.maxMembers,
		h.deps.Clock.Now().UTC(),
	)
	if err != nil {
		return CreatePrivateLeaderboardResult{Result: h.deps.fail("CreatePrivateLeaderboard", err, logger.UserID(cmd.OwnerID))}
	}

	if err := h.deps.Store.Create(ctx, lb); err != nil {
		return CreatePrivateLeaderboardResult{Result: h.deps.fail("CreatePrivateLeaderboard", err, logger.UserID(cmd.OwnerID))}
	}

	h.deps.Logger.Info("private leaderboard created",
		logger.LeaderboardID(lb.ID),
		logger.UserID(lb.OwnerID),
	)
	h.deps.publish(shared.NewLeaderboardEvent(shared.EventLeaderboardCreated, lb.ID, lb.OwnerID, lb.OwnerID))

	return CreatePrivateLeaderboardResult{Result: Ok(), Leaderboard: lb}
}
