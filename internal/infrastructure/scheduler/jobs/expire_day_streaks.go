// Package jobs contains the scheduled maintenance jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE DAY STREAKS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StreakExpirer zeroes stored day streaks whose last valid day is before
// yesterday.
type StreakExpirer interface {
	ExpireDayStreaks(ctx context.Context, today time.Time) (int64, error)
}

// ExpireDayStreaksJob keeps the global day-streak ranking honest for users
// who stopped practicing. Their engines would break the streak on the next
// initialization, but the stored value ranks until then.
type ExpireDayStreaksJob struct {
	store  StreakExpirer
	clock  timeutil.Clock
	logger *logger.Logger
}

// NewExpireDayStreaksJob creates the job.
func NewExpireDayStreaksJob(store StreakExpirer, clock timeutil.Clock, log *logger.Logger) *ExpireDayStreaksJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ExpireDayStreaksJob{store: store, clock: clock, logger: log}
}

func (j *ExpireDayStreaksJob) Name() string { return "expire_day_streaks" }

func (j *ExpireDayStreaksJob) Description() string {
	return "Resets stored day streaks that were not extended yesterday or today"
}

func (j *ExpireDayStreaksJob) Run(ctx context.Context) error {
	today := timeutil.Today(j.clock)

	n, err := j.store.ExpireDayStreaks(ctx, today)
	if err != nil {
		return fmt.Errorf("expire day streaks: %w", err)
	}

	j.logger.Info("day streaks expired",
		logger.String("today", timeutil.FormatDay(today)),
		logger.Int64("profiles", n),
	)
	return nil
}
