package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *stubJob) Name() string                  { return j.name }
func (j *stubJob) Description() string           { return "stub" }
func (j *stubJob) Run(ctx context.Context) error { return j.run(ctx) }

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()

	s, err := New(Config{JobTimeout: time.Second})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestScheduler_RegisterAndRunNow(t *testing.T) {
	s := newTestScheduler(t)

	calls := 0
	job := &stubJob{name: "count", run: func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	}}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	res, err := s.RunNow("count")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "count", res.JobName)
	assert.Equal(t, 1, calls)

	last, ok := s.LastResult("count")
	require.True(t, ok)
	assert.True(t, last.Success)
}

func TestScheduler_RecordsFailureAndPanic(t *testing.T) {
	s := newTestScheduler(t)

	boom := errors.New("boom")
	require.NoError(t, s.Register(&stubJob{name: "fail", run: func(context.Context) error { return boom }}, Every(time.Hour)))
	require.NoError(t, s.Register(&stubJob{name: "panic", run: func(context.Context) error { panic("oops") }}, DailyAt(0, 5)))

	res, err := s.RunNow("fail")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, boom)

	res, err = s.RunNow("panic")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error.Error(), "oops")
}

func TestScheduler_RegisterErrors(t *testing.T) {
	s := newTestScheduler(t)

	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)

	job := &stubJob{name: "dup", run: func(context.Context) error { return nil }}
	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)

	_, err := s.RunNow("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduleLabels(t *testing.T) {
	assert.Equal(t, "every 1m0s", Every(time.Minute).String())
	assert.Equal(t, "daily at 00:05", DailyAt(0, 5).String())
}
