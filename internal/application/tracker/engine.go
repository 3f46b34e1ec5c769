// Package tracker implements the per-user progress engine: it owns the
// in-memory UserProgress, applies practice results, achievements and bonuses,
// mirrors every change to the local cache and schedules debounced writes to the
// remote profile store.
package tracker

import (
	"context"
	"sync"

	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
	"github.com/studyquest/studyquest-core/pkg/logger"
	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// ProfileReader is the read side of the remote profile store.
type ProfileReader interface {
	ReadProfile(ctx context.Context, userID string) (*profile.Profile, error)
}

// RemoteScheduler queues remote profile writes (see messaging.DebouncedWriter).
type RemoteScheduler interface {
	Schedule(userID string, u profile.Update) error
	Flush(ctx context.Context, userID string)
}

// Config wires an Engine. Remote and Writer may be nil for a signed-out user.
type Config struct {
	UserID    string
	DailyGoal int
	Catalog   *progress.Catalog
	Cache     progress.LocalCache
	Remote    ProfileReader
	Writer    RemoteScheduler
	Events    shared.EventPublisher
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// PracticeResult is returned by RecordPractice.
type PracticeResult struct {
	XPGained        int                    `json:"xpGained"`
	NewAchievements []progress.Achievement `json:"newAchievements"`
	DayStreak       int                    `json:"dayStreak"`
	GoalReached     bool                   `json:"goalReached"`
}

// CollectResult is returned by CollectAchievementXP.
type CollectResult struct {
	XPGained        int                    `json:"xpGained"`
	NewAchievements []progress.Achievement `json:"newAchievements"`
}

// Engine is the progress engine of one user. All methods are safe for
// concurrent use; operations are applied one at a time.
type Engine struct {
	mu          sync.Mutex
	userID      string
	state       *progress.UserProgress
	initialized bool

	dailyGoal int
	catalog   *progress.Catalog
	cache     progress.LocalCache
	remote    ProfileReader
	writer    RemoteScheduler
	events    shared.EventPublisher
	clock     timeutil.Clock
	logger    *logger.Logger
}

// NewEngine creates an engine with zero state. Call Initialize before use;
// RecordPractice initializes lazily.
func NewEngine(cfg Config) *Engine {
	if cfg.DailyGoal < 1 {
		cfg.DailyGoal = progress.DefaultDailyQuestionGoal
	}
	if cfg.Catalog == nil {
		cfg.Catalog = progress.DefaultCatalog()
	}
	if cfg.Events == nil {
		cfg.Events = shared.NopPublisher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewSystemClock(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	return &Engine{
		userID:    cfg.UserID,
		state:     progress.New(),
		dailyGoal: cfg.DailyGoal,
		catalog:   cfg.Catalog,
		cache:     cfg.Cache,
		remote:    cfg.Remote,
		writer:    cfg.Writer,
		events:    cfg.Events,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With(logger.Component("progress_engine"), logger.UserID(cfg.UserID)),
	}
}

// UserID returns the owner of this engine.
func (e *Engine) UserID() string { return e.userID }

// Initialize loads the cached state, reconciles it with the remote profile
// and validates the streak against today. Store failures are logged and the
// best available state is used.
func (e *Engine) Initialize(ctx context.Context) *progress.UserProgress {
	e.mu.Lock()
	events := e.initializeLocked(ctx)
	snapshot := e.state.Clone()
	e.mu.Unlock()

	e.publish(events)
	return snapshot
}

func (e *Engine) initializeLocked(ctx context.Context) []shared.Event {
	// Отложенная запись новее удалённого профиля: сначала отправляем её
	if e.writer != nil {
		e.writer.Flush(ctx, e.userID)
	}

	state := progress.New()
	fromCache := false
	if e.cache != nil {
		cached, err := e.cache.Get(ctx, e.userID)
		if err != nil {
			e.logger.Warn("local progress cache read failed", logger.Err(err))
		} else if cached != nil {
			state = cached
			fromCache = true
		}
	}

	refreshCache, pushRemote := false, false
	if e.remote != nil {
		prof, err := e.remote.ReadProfile(ctx, e.userID)
		switch {
		case err == nil:
			// Удалённый профиль - источник истины
			stats := prof.Stats
			state = stats.Clone()
			refreshCache = true
		case shared.IsNotFound(err):
			// Профиля ещё нет: выгружаем локальный прогресс
			pushRemote = fromCache
		default:
			e.logger.Warn("remote profile read failed, using cached progress", logger.Err(err))
		}
	}

	state.Normalize()
	e.state = state
	e.initialized = true

	var events []shared.Event
	v := e.state.ValidateStreak(timeutil.Today(e.clock))
	if v.BrokenStreak > 0 {
		events = append(events, shared.NewDayStreakBrokenEvent(e.userID, v.BrokenStreak))
	}

	switch {
	case v.Changed || pushRemote:
		e.persistLocked(ctx)
	case refreshCache:
		e.writeCacheLocked(ctx)
	}

	return events
}

func (e *Engine) ensureInitialized(ctx context.Context) {
	e.mu.Lock()
	events := e.ensureInitializedLocked(ctx)
	e.mu.Unlock()

	e.publish(events)
}

// ensureInitializedLocked also re-checks the day streak of a live engine, so a
// long-lived engine sees the same calendar as a freshly loaded one.
func (e *Engine) ensureInitializedLocked(ctx context.Context) []shared.Event {
	if !e.initialized {
		return e.initializeLocked(ctx)
	}

	v := e.state.ValidateStreak(timeutil.Today(e.clock))
	if !v.Changed {
		return nil
	}
	e.persistLocked(ctx)
	if v.BrokenStreak > 0 {
		return []shared.Event{shared.NewDayStreakBrokenEvent(e.userID, v.BrokenStreak)}
	}
	return nil
}

// RecordPractice records one answered question.
func (e *Engine) RecordPractice(ctx context.Context, correct bool, questionID string) PracticeResult {
	e.mu.Lock()
	events := e.ensureInitializedLocked(ctx)

	out := e.state.RecordPractice(progress.Practice{
		Correct:    correct,
		QuestionID: questionID,
		Today:      timeutil.Today(e.clock),
		DailyGoal:  e.dailyGoal,
	}, e.catalog)

	e.persistLocked(ctx)

	events = append(events, shared.NewXPGainedEvent(e.userID, out.XPGained, e.state.TotalXP, shared.XPSourcePractice))
	if out.Streak.Changed {
		events = append(events, shared.NewDayStreakUpdatedEvent(e.userID, out.Streak.Previous, out.Streak.Current))
	}
	events = append(events, e.unlockedEvents(out.NewAchievements)...)

	res := PracticeResult{
		XPGained:        out.XPGained,
		NewAchievements: nonNil(out.NewAchievements),
		DayStreak:       e.state.DayStreak,
		GoalReached:     out.GoalReached,
	}
	e.mu.Unlock()

	e.publish(events)
	return res
}

// CollectAchievementXP credits the reward of an unlocked, uncollected
// achievement. Anything else is a no-op returning zero gain.
func (e *Engine) CollectAchievementXP(ctx context.Context, id progress.AchievementID) CollectResult {
	e.mu.Lock()
	events := e.ensureInitializedLocked(ctx)

	gained, unlocked := e.state.CollectReward(e.catalog, id)
	if gained == 0 {
		e.mu.Unlock()
		e.publish(events)
		return CollectResult{NewAchievements: []progress.Achievement{}}
	}

	e.persistLocked(ctx)

	events = append(events,
		shared.NewAchievementCollectedEvent(e.userID, string(id), gained),
		shared.NewXPGainedEvent(e.userID, gained, e.state.TotalXP, shared.XPSourceAchievement),
	)
	events = append(events, e.unlockedEvents(unlocked)...)
	e.mu.Unlock()

	e.publish(events)
	return CollectResult{XPGained: gained, NewAchievements: nonNil(unlocked)}
}

// AddBonusXP credits amount XP. Non-positive amounts are ignored.
func (e *Engine) AddBonusXP(ctx context.Context, amount int) []progress.Achievement {
	e.mu.Lock()
	events := e.ensureInitializedLocked(ctx)

	if amount <= 0 {
		e.mu.Unlock()
		e.publish(events)
		return []progress.Achievement{}
	}

	unlocked := e.state.AddBonusXP(e.catalog, amount)
	e.persistLocked(ctx)

	events = append(events, shared.NewXPGainedEvent(e.userID, amount, e.state.TotalXP, shared.XPSourceBonus))
	events = append(events, e.unlockedEvents(unlocked)...)
	e.mu.Unlock()

	e.publish(events)
	return nonNil(unlocked)
}

// GetProgress returns a copy of the current state.
func (e *Engine) GetProgress() *progress.UserProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// GetAchievements returns the whole catalog with this user's state per entry.
func (e *Engine) GetAchievements() []progress.AchievementStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalog.Statuses(e.state)
}

// Reset replaces the state with zero progress and writes it to the local
// cache. The remote profile is left untouched.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Reset()
	e.initialized = true
	e.writeCacheLocked(ctx)
	e.logger.Info("progress reset")
}

// Flush writes the pending remote update now.
func (e *Engine) Flush(ctx context.Context) {
	if e.writer != nil {
		e.writer.Flush(ctx, e.userID)
	}
}

func (e *Engine) persistLocked(ctx context.Context) {
	e.writeCacheLocked(ctx)

	if e.writer == nil {
		return
	}
	if err := e.writer.Schedule(e.userID, profile.StatsUpdate(e.state)); err != nil {
		e.logger.Warn("remote profile write not scheduled", logger.Err(err))
	}
}

func (e *Engine) writeCacheLocked(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, e.userID, e.state); err != nil {
		e.logger.Warn("local progress cache write failed", logger.Err(err))
	}
}

func (e *Engine) unlockedEvents(unlocked []progress.Achievement) []shared.Event {
	events := make([]shared.Event, 0, len(unlocked))
	for _, a := range unlocked {
		e.logger.Info("achievement unlocked", logger.AchievementID(string(a.ID)))
		events = append(events, shared.NewAchievementUnlockedEvent(e.userID, string(a.ID), a.XPReward))
	}
	return events
}

func (e *Engine) publish(events []shared.Event) {
	for _, ev := range events {
		if err := e.events.Publish(ev); err != nil {
			e.logger.Debug("event not published",
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err),
			)
		}
	}
}

func nonNil(a []progress.Achievement) []progress.Achievement {
	if a == nil {
		return []progress.Achievement{}
	}
	return a
}
