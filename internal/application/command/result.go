// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// GenericFailureMessage is returned for failures that carry no user message,
// e.g. a backing store outage.
const GenericFailureMessage = "Something went wrong. Please try again."

// Result is the uniform outcome of every leaderboard administration command.
// Expected failures (validation, permission, capacity, not found) are reported
// here and never as a Go error.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ok returns a successful result.
func Ok() Result {
	return Result{Success: true}
}

// ProfileLookup is the part of the profile store the commands read.
type ProfileLookup interface {
	ReadProfile(ctx context.Context, userID string) (*profile.Profile, error)
	ResolveUsername(ctx context.Context, username string) (*profile.Profile, error)
}

// Deps are the collaborators shared by the leaderboard commands.
type Deps struct {
	Store    leaderboard.PrivateLeaderboardStore
	Profiles ProfileLookup
	Events   shared.EventPublisher
	Clock    timeutil.Clock
	Logger   *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Events == nil {
		d.Events = shared.NopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = timeutil.NewSystemClock(nil)
	}
	if d.Logger == nil {
		d.Logger = logger.Default()
	}
	d.Logger = d.Logger.With(logger.Component("leaderboard_admin"))
	return d
}

// fail converts err into a failed Result. Domain errors keep their message;
// anything else is logged and replaced by GenericFailureMessage.
func (d Deps) fail(op string, err error, fields ...logger.Field) Result {
	fields = append(fields, logger.Operation(op), logger.Err(err))
	if msg, ok := shared.UserMessage(err); ok {
		d.Logger.Debug("command rejected", fields...)
		return Result{Error: msg}
	}
	d.Logger.Error("command failed", fields...)
	return Result{Error: GenericFailureMessage}
}

func (d Deps) publish(e shared.Event) {
	if err := d.Events.Publish(e); err != nil {
		d.Logger.Debug("event not published", logger.Err(err))
	}
}

// loadOwned returns the leaderboard when requesterID owns it.
func (d Deps) loadOwned(ctx context.Context, id, requesterID string) (*leaderboard.PrivateLeaderboard, error) {
	if requesterID == "" {
		return nil, leaderboard.ErrInvalidUserID
	}
	lb, err := d.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lb.IsOwner(requesterID) {
		return nil, leaderboard.ErrNotOwner
	}
	return lb, nil
}
