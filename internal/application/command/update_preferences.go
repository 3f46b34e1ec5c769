package command

import (
	"context"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PREFERENCES COMMAND
// Visibility preferences and username of a profile.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesCommand contains optional preference updates.
// nil values mean "don't change".
type UpdatePreferencesCommand struct {
	UserID string

	// HideFromGlobal - opt out of the global leaderboard.
	HideFromGlobal *bool

	// BlockInvites - refuse private leaderboard invites.
	BlockInvites *bool

	// Username - claim or change the username.
	Username *string
}

// IsEmpty reports whether the command changes nothing.
func (c UpdatePreferencesCommand) IsEmpty() bool {
	return c.HideFromGlobal == nil && c.BlockInvites == nil && c.Username == nil
}

// ProfileWriter is the part of the profile store the command writes.
type ProfileWriter interface {
	ReadProfile(ctx context.Context, userID string) (*profile.Profile, error)
	WriteProfile(ctx context.Context, userID string, u profile.Update) error
}

// HiddenSetInvalidator drops a cached hidden-user set.
type HiddenSetInvalidator interface {
	Invalidate(ctx context.Context) error
}

// UpdatePreferencesHandler handles UpdatePreferencesCommand.
type UpdatePreferencesHandler struct {
	profiles ProfileWriter
	hidden   HiddenSetInvalidator
	logger   *logger.Logger
}

// NewUpdatePreferencesHandler creates a new handler. hidden may be nil when
// the hidden set is not cached.
func NewUpdatePreferencesHandler(profiles ProfileWriter, hidden HiddenSetInvalidator, log *logger.Logger) *UpdatePreferencesHandler {
	if log == nil {
		log = logger.Default()
	}
	return &UpdatePreferencesHandler{
		profiles: profiles,
		hidden:   hidden,
		logger:   log.With(logger.Component("preferences")),
	}
}

// Handle executes the command.
func (h *UpdatePreferencesHandler) Handle(ctx context.Context, cmd UpdatePreferencesCommand) Result {
	if err := h.update(ctx, cmd); err != nil {
		fields := []logger.Field{logger.Operation("UpdatePreferences"), logger.UserID(cmd.UserID), logger.Err(err)}
		if msg, ok := shared.UserMessage(err); ok {
			h.logger.Debug("preferences rejected", fields...)
			return Result{Error: msg}
		}
		h.logger.Error("preferences update failed", fields...)
		return Result{Error: GenericFailureMessage}
	}
	return Ok()
}

func (h *UpdatePreferencesHandler) update(ctx context.Context, cmd UpdatePreferencesCommand) error {
	if cmd.UserID == "" {
		return leaderboard.ErrInvalidUserID
	}
	if cmd.IsEmpty() {
		return nil
	}

	var u profile.Update

	if cmd.Username != nil {
		name := profile.NormalizeUsername(*cmd.Username)
		if err := profile.ValidateUsername(name); err != nil {
			return err
		}
		u.Username = &name
	}

	visibilityChanged := cmd.HideFromGlobal != nil || cmd.BlockInvites != nil
	if visibilityChanged {
		var vis profile.Visibility
		current, err := h.profiles.ReadProfile(ctx, cmd.UserID)
		switch {
		case err == nil:
			vis = current.Visibility
		case !shared.IsNotFound(err):
			return err
		}
		if cmd.HideFromGlobal != nil {
			vis.HideFromGlobal = *cmd.HideFromGlobal
		}
		if cmd.BlockInvites != nil {
			vis.BlockInvites = *cmd.BlockInvites
		}
		u.Visibility = &vis
	}

	if err := h.profiles.WriteProfile(ctx, cmd.UserID, u); err != nil {
		return err
	}

	if visibilityChanged && h.hidden != nil {
		if err := h.hidden.Invalidate(ctx); err != nil {
			h.logger.Warn("hidden set not invalidated", logger.Err(err))
		}
	}

	h.logger.Info("preferences updated", logger.UserID(cmd.UserID))
	return nil
}
