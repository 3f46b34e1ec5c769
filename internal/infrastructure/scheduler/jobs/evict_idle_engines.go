package jobs

import (
	"context"
	"time"

	"github.com/studyquest/studyquest-core/pkg/logger"
)

// IdleEvicter drops progress engines that have not been used for a while.
type IdleEvicter interface {
	EvictIdle(ctx context.Context, idle time.Duration) int
}

// EvictIdleEnginesJob flushes and unloads engines of users who went quiet.
// The next request reloads the state from the stores.
type EvictIdleEnginesJob struct {
	registry IdleEvicter
	idle     time.Duration
	logger   *logger.Logger
}

// NewEvictIdleEnginesJob creates the job.
func NewEvictIdleEnginesJob(registry IdleEvicter, idle time.Duration, log *logger.Logger) *EvictIdleEnginesJob {
	if log == nil {
		log = logger.Nop()
	}
	return &EvictIdleEnginesJob{registry: registry, idle: idle, logger: log}
}

func (j *EvictIdleEnginesJob) Name() string { return "evict_idle_engines" }

func (j *EvictIdleEnginesJob) Description() string {
	return "Unloads progress engines idle for longer than the configured timeout"
}

func (j *EvictIdleEnginesJob) Run(ctx context.Context) error {
	if n := j.registry.EvictIdle(ctx, j.idle); n > 0 {
		j.logger.Info("idle progress engines evicted", logger.Int("engines", n))
	}
	return ctx.Err()
}
