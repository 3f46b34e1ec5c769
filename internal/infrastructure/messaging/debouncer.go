package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/circuitbreaker"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEBOUNCED PROFILE WRITER
// ══════════════════════════════════════════════════════════════════════════════

// ErrWriterClosed is returned by Schedule after Close.
var ErrWriterClosed = errors.New("debounced writer is closed")

// ProfileWriter is the write side of the remote profile store.
type ProfileWriter interface {
	WriteProfile(ctx context.Context, userID string, u profile.Update) error
}

// DebouncedWriter coalesces bursts of profile updates per user. Each Schedule
// replaces the pending update for that user and re-arms its timer; only the
// latest update is written once the user has been quiet for Delay.
// Writes of one user never overlap, so a newer update cannot be overwritten
// by an older one still retrying. Failed writes are logged and dropped.
type DebouncedWriter struct {
	store        ProfileWriter
	delay        time.Duration
	writeTimeout time.Duration
	retrier      *retry.Retrier
	breaker      *circuitbreaker.CircuitBreaker
	logger       *logger.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	pending map[string]*pendingWrite
	writing map[string]bool
	gen     uint64
	closed  bool
	wg      sync.WaitGroup
}

type pendingWrite struct {
	update profile.Update
	timer  *time.Timer
	gen    uint64
}

// DebouncedWriterConfig configures DebouncedWriter.
type DebouncedWriterConfig struct {
	// Delay of quiet time before the pending update is written
	Delay time.Duration

	// WriteTimeout bounds each timer-driven write
	WriteTimeout time.Duration

	// Retrier re-attempts transient store failures (nil: one attempt)
	Retrier *retry.Retrier

	// Breaker skips writes while the store keeps failing (nil: always write)
	Breaker *circuitbreaker.CircuitBreaker

	Logger *logger.Logger
}

// NewDebouncedWriter creates a writer in front of store.
func NewDebouncedWriter(store ProfileWriter, config DebouncedWriterConfig) *DebouncedWriter {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	w := &DebouncedWriter{
		store:        store,
		delay:        config.Delay,
		writeTimeout: config.WriteTimeout,
		retrier:      config.Retrier,
		breaker:      config.Breaker,
		logger:       config.Logger.With(logger.Component("debounced_writer")),
		pending:      make(map[string]*pendingWrite),
		writing:      make(map[string]bool),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Schedule queues u for userID, merging it over any pending update.
func (w *DebouncedWriter) Schedule(userID string, u profile.Update) error {
	if u.IsEmpty() {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	w.gen++
	gen := w.gen

	if p, ok := w.pending[userID]; ok {
		p.timer.Stop()
		p.update = p.update.Merge(u)
		p.gen = gen
		p.timer = time.AfterFunc(w.delay, func() { w.fire(userID, gen) })
		return nil
	}

	w.pending[userID] = &pendingWrite{
		update: u,
		gen:    gen,
		timer:  time.AfterFunc(w.delay, func() { w.fire(userID, gen) }),
	}
	return nil
}

func (w *DebouncedWriter) fire(userID string, gen uint64) {
	w.mu.Lock()
	for {
		p, ok := w.pending[userID]
		// Перевзведённый таймер или уже сброшенная запись
		if !ok || p.gen != gen || w.closed {
			w.mu.Unlock()
			return
		}
		if !w.writing[userID] {
			break
		}
		w.idle.Wait()
	}
	u := w.takeLocked(userID)
	w.wg.Add(1)
	w.mu.Unlock()

	defer w.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), w.writeTimeout)
	defer cancel()
	w.write(ctx, userID, u)
}

// Flush writes the pending update for userID immediately, if any. It waits
// for a write of the same user that is already in flight.
func (w *DebouncedWriter) Flush(ctx context.Context, userID string) {
	w.mu.Lock()
	for w.writing[userID] {
		w.idle.Wait()
	}
	if _, ok := w.pending[userID]; !ok {
		w.mu.Unlock()
		return
	}
	u := w.takeLocked(userID)
	w.mu.Unlock()

	w.write(ctx, userID, u)
}

// FlushAll writes every pending update immediately.
func (w *DebouncedWriter) FlushAll(ctx context.Context) {
	w.mu.Lock()
	users := make([]string, 0, len(w.pending))
	for userID := range w.pending {
		users = append(users, userID)
	}
	w.mu.Unlock()

	for _, userID := range users {
		w.Flush(ctx, userID)
	}
}

// takeLocked removes the pending update of userID and marks the user as
// being written. The caller must hold w.mu and pass the update to write.
func (w *DebouncedWriter) takeLocked(userID string) profile.Update {
	p := w.pending[userID]
	p.timer.Stop()
	delete(w.pending, userID)
	w.writing[userID] = true
	return p.update
}

func (w *DebouncedWriter) done(userID string) {
	w.mu.Lock()
	delete(w.writing, userID)
	w.mu.Unlock()
	w.idle.Broadcast()
}

// Pending returns the number of users with an unwritten update.
func (w *DebouncedWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Close rejects further updates, writes what is pending and waits for
// in-flight writes.
func (w *DebouncedWriter) Close(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.FlushAll(ctx)
	w.wg.Wait()
}

func (w *DebouncedWriter) write(ctx context.Context, userID string, u profile.Update) {
	defer w.done(userID)
	start := time.Now()

	op := func(ctx context.Context) error { return w.store.WriteProfile(ctx, userID, u) }
	if w.breaker != nil {
		guarded := op
		op = func(ctx context.Context) error {
			err := w.breaker.Execute(ctx, guarded)
			if errors.Is(err, circuitbreaker.ErrOpen) {
				return retry.Permanent(err)
			}
			return err
		}
	}

	var err error
	if w.retrier != nil {
		err = w.retrier.Do(ctx, op)
	} else {
		err = op(ctx)
	}

	if err != nil {
		w.logger.Warn("remote profile write failed",
			logger.UserID(userID),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
		return
	}
	w.logger.Debug("remote profile written",
		logger.UserID(userID),
		logger.Latency(time.Since(start)),
	)
}

// IsTransientWriteError reports whether a failed profile write may succeed
// when repeated. Rejections by the store (taken username, bad input) are final.
func IsTransientWriteError(err error) bool {
	if _, domain := shared.UserMessage(err); !domain {
		return true
	}
	return errors.Is(err, shared.ErrExternalService)
}
