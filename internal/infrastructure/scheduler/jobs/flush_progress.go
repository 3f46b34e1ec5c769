package jobs

import "context"

// Flusher pushes pending remote progress writes.
type Flusher interface {
	FlushAll(ctx context.Context)
}

// FlushProgressJob bounds how long a debounced progress write may wait when
// a user keeps practicing without pause.
type FlushProgressJob struct {
	flusher Flusher
}

// NewFlushProgressJob creates the job.
func NewFlushProgressJob(f Flusher) *FlushProgressJob {
	return &FlushProgressJob{flusher: f}
}

func (j *FlushProgressJob) Name() string { return "flush_progress" }
func (j *FlushProgressJob) Description() string {
	return "Writes pending progress updates to the profile store"
}

func (j *FlushProgressJob) Run(ctx context.Context) error {
	j.flusher.FlushAll(ctx)
	return ctx.Err()
}
