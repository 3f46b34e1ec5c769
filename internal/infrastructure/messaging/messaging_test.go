package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/circuitbreaker"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/retry"
)

type recordingStore struct {
	mu     sync.Mutex
	writes map[string][]profile.Update
	err    error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{writes: make(map[string][]profile.Update)}
}

func (s *recordingStore) WriteProfile(_ context.Context, userID string, u profile.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[userID] = append(s.writes[userID], u)
	return s.err
}

func (s *recordingStore) count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes[userID])
}

func (s *recordingStore) last(userID string) profile.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.writes[userID]
	return w[len(w)-1]
}

func statsWithXP(xp int) profile.Update {
	p := progress.New()
	p.TotalXP = xp
	return profile.StatsUpdate(p)
}

func TestDebouncedWriter_CoalescesBurst(t *testing.T) {
	store := newRecordingStore()
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: 30 * time.Millisecond, Logger: logger.Nop()})

	for xp := 10; xp <= 50; xp += 10 {
		require.NoError(t, w.Schedule("u1", statsWithXP(xp)))
	}
	assert.Equal(t, 1, w.Pending())

	assert.Eventually(t, func() bool { return store.count("u1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 50, store.last("u1").Stats.TotalXP)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, store.count("u1"))
	assert.Zero(t, w.Pending())
}

func TestDebouncedWriter_MergesFields(t *testing.T) {
	store := newRecordingStore()
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: time.Hour, Logger: logger.Nop()})

	name := "alice"
	require.NoError(t, w.Schedule("u1", statsWithXP(10)))
	require.NoError(t, w.Schedule("u1", profile.Update{Username: &name}))

	w.Flush(context.Background(), "u1")

	require.Equal(t, 1, store.count("u1"))
	got := store.last("u1")
	require.NotNil(t, got.Stats)
	require.NotNil(t, got.Username)
	assert.Equal(t, 10, got.Stats.TotalXP)
	assert.Equal(t, "alice", *got.Username)
}

func TestDebouncedWriter_FlushAndClose(t *testing.T) {
	store := newRecordingStore()
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: time.Hour, Logger: logger.Nop()})

	require.NoError(t, w.Schedule("u1", statsWithXP(10)))
	require.NoError(t, w.Schedule("u2", statsWithXP(20)))

	w.Flush(context.Background(), "u1")
	assert.Equal(t, 1, store.count("u1"))
	assert.Equal(t, 0, store.count("u2"))

	w.Close(context.Background())
	assert.Equal(t, 1, store.count("u2"))
	assert.ErrorIs(t, w.Schedule("u1", statsWithXP(30)), ErrWriterClosed)
}

func TestDebouncedWriter_FailureIsDropped(t *testing.T) {
	store := newRecordingStore()
	store.err = errors.New("connection refused")
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: 5 * time.Millisecond, Logger: logger.Nop()})

	require.NoError(t, w.Schedule("u1", statsWithXP(10)))

	assert.Eventually(t, func() bool { return store.count("u1") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, store.count("u1"))
	assert.Zero(t, w.Pending())
}

func TestDebouncedWriter_RetriesTransientFailures(t *testing.T) {
	store := newRecordingStore()
	store.err = errors.New("connection reset")
	w := NewDebouncedWriter(store, DebouncedWriterConfig{
		Delay:   time.Hour,
		Retrier: retry.New(retry.WithMaxAttempts(3), retry.WithBackoff(time.Millisecond, time.Millisecond), retry.WithRetryIf(IsTransientWriteError)),
		Logger:  logger.Nop(),
	})

	require.NoError(t, w.Schedule("u1", statsWithXP(10)))
	w.Flush(context.Background(), "u1")
	assert.Equal(t, 3, store.count("u1"))

	// Rejections by the store are not repeated
	store.err = profile.ErrUsernameTaken
	require.NoError(t, w.Schedule("u2", statsWithXP(10)))
	w.Flush(context.Background(), "u2")
	assert.Equal(t, 1, store.count("u2"))
}

func TestDebouncedWriter_BreakerSkipsWrites(t *testing.T) {
	store := newRecordingStore()
	store.err = errors.New("connection refused")
	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithCooldown(time.Hour))
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: time.Hour, Breaker: breaker, Logger: logger.Nop()})

	for _, id := range []string{"u1", "u2", "u3"} {
		require.NoError(t, w.Schedule(id, statsWithXP(10)))
		w.Flush(context.Background(), id)
	}

	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.Equal(t, 1, store.count("u1"))
	assert.Equal(t, 1, store.count("u2"))
	assert.Zero(t, store.count("u3"))
}

// gatedStore holds its first write until gate is closed.
type gatedStore struct {
	mu      sync.Mutex
	started int
	applied []int
	gate    chan struct{}
}

func (s *gatedStore) WriteProfile(_ context.Context, _ string, u profile.Update) error {
	s.mu.Lock()
	s.started++
	first := s.started == 1
	s.mu.Unlock()

	if first {
		<-s.gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, u.Stats.TotalXP)
	return nil
}

func (s *gatedStore) snapshot() (int, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, append([]int(nil), s.applied...)
}

func TestDebouncedWriter_WritesOfOneUserDoNotOverlap(t *testing.T) {
	store := &gatedStore{gate: make(chan struct{})}
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: time.Millisecond, Logger: logger.Nop()})

	require.NoError(t, w.Schedule("u1", statsWithXP(10)))
	assert.Eventually(t, func() bool { started, _ := store.snapshot(); return started == 1 }, time.Second, time.Millisecond)

	require.NoError(t, w.Schedule("u1", statsWithXP(20)))
	time.Sleep(30 * time.Millisecond)
	started, _ := store.snapshot()
	assert.Equal(t, 1, started, "second write must wait for the first")

	close(store.gate)
	assert.Eventually(t, func() bool { _, applied := store.snapshot(); return len(applied) == 2 }, time.Second, time.Millisecond)
	_, applied := store.snapshot()
	assert.Equal(t, []int{10, 20}, applied)
}

func TestDebouncedWriter_FlushWaitsForInFlightWrite(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{gate: make(chan struct{})}
	w := NewDebouncedWriter(store, DebouncedWriterConfig{Delay: time.Hour, Logger: logger.Nop()})

	require.NoError(t, w.Schedule("u1", statsWithXP(10)))
	go w.Flush(ctx, "u1")
	assert.Eventually(t, func() bool { started, _ := store.snapshot(); return started == 1 }, time.Second, time.Millisecond)

	require.NoError(t, w.Schedule("u1", statsWithXP(20)))
	flushed := make(chan struct{})
	go func() {
		w.Flush(ctx, "u1")
		close(flushed)
	}()

	select {
	case <-flushed:
		t.Fatal("flush returned while the first write was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(store.gate)
	<-flushed
	_, applied := store.snapshot()
	assert.Equal(t, []int{10, 20}, applied)
}

func TestIsTransientWriteError(t *testing.T) {
	assert.True(t, IsTransientWriteError(errors.New("timeout")))
	assert.True(t, IsTransientWriteError(shared.WrapError("profile", "Write", shared.ErrExternalService, "Store unavailable", errors.New("eof"))))
	assert.False(t, IsTransientWriteError(profile.ErrUsernameTaken))
}

func TestDebouncedWriter_IgnoresEmptyUpdate(t *testing.T) {
	w := NewDebouncedWriter(newRecordingStore(), DebouncedWriterConfig{Delay: time.Hour, Logger: logger.Nop()})
	require.NoError(t, w.Schedule("u1", profile.Update{}))
	assert.Zero(t, w.Pending())
}

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent("u1", 10, 10, shared.XPSourcePractice)))
	require.NoError(t, bus.Publish(shared.NewDayStreakUpdatedEvent("u1", 0, 1)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewDayStreakBrokenEvent("u1", 3)), ErrEventBusClosed)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Nop()})

	var calls atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { calls.Add(1); return nil }))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("u1", "streak_3", 25)))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 10 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())
}
