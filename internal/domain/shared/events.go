package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	// Progress events
	EventXPGained             EventType = "progress.xp_gained"
	EventAchievementUnlocked  EventType = "progress.achievement_unlocked"
	EventAchievementCollected EventType = "progress.achievement_collected"
	EventDayStreakUpdated     EventType = "progress.day_streak_updated"
	EventDayStreakBroken      EventType = "progress.day_streak_broken"

	// Private leaderboard events
	EventLeaderboardCreated   EventType = "leaderboard.created"
	EventLeaderboardDeleted   EventType = "leaderboard.deleted"
	EventMemberAdded          EventType = "leaderboard.member_added"
	EventMemberRemoved        EventType = "leaderboard.member_removed"
	EventOwnershipTransferred EventType = "leaderboard.ownership_transferred"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the user or leaderboard id that produced the event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]any
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event stamped with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted whenever XP is credited to a user.
type XPGainedEvent struct {
	BaseEvent
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"`
}

// XP sources.
const (
	XPSourcePractice    = "practice"
	XPSourceAchievement = "achievement"
	XPSourceBonus       = "bonus"
)

func (e XPGainedEvent) Payload() map[string]any {
	return map[string]any{
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"source":    e.Source,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID string, amount, newTotal int, source string) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID),
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
	}
}

// AchievementUnlockedEvent is emitted once per achievement, on the transition
// from locked to unlocked.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	XPReward      int    `json:"xp_reward"`
}

func (e AchievementUnlockedEvent) Payload() map[string]any {
	return map[string]any{
		"achievement_id": e.AchievementID,
		"xp_reward":      e.XPReward,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID string, reward int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		AchievementID: achievementID,
		XPReward:      reward,
	}
}

// AchievementCollectedEvent is emitted when the reward of an unlocked
// achievement is credited.
type AchievementCollectedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	XPReward      int    `json:"xp_reward"`
}

func (e AchievementCollectedEvent) Payload() map[string]any {
	return map[string]any{
		"achievement_id": e.AchievementID,
		"xp_reward":      e.XPReward,
	}
}

// NewAchievementCollectedEvent creates a new AchievementCollectedEvent.
func NewAchievementCollectedEvent(userID, achievementID string, reward int) AchievementCollectedEvent {
	return AchievementCollectedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementCollected, userID),
		AchievementID: achievementID,
		XPReward:      reward,
	}
}

// DayStreakUpdatedEvent is emitted when the daily goal is reached and the
// day streak changes.
type DayStreakUpdatedEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
	NewStreak      int `json:"new_streak"`
}

func (e DayStreakUpdatedEvent) Payload() map[string]any {
	return map[string]any{
		"previous_streak": e.PreviousStreak,
		"new_streak":      e.NewStreak,
	}
}

// NewDayStreakUpdatedEvent creates a new DayStreakUpdatedEvent.
func NewDayStreakUpdatedEvent(userID string, previous, current int) DayStreakUpdatedEvent {
	return DayStreakUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventDayStreakUpdated, userID),
		PreviousStreak: previous,
		NewStreak:      current,
	}
}

// DayStreakBrokenEvent is emitted when validation zeroes a non-zero streak.
type DayStreakBrokenEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
}

func (e DayStreakBrokenEvent) Payload() map[string]any {
	return map[string]any{
		"previous_streak": e.PreviousStreak,
	}
}

// NewDayStreakBrokenEvent creates a new DayStreakBrokenEvent.
func NewDayStreakBrokenEvent(userID string, previous int) DayStreakBrokenEvent {
	return DayStreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventDayStreakBroken, userID),
		PreviousStreak: previous,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Private Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardEvent covers every private-leaderboard membership change.
// ActorID is who performed the change, SubjectID whom it affected.
type LeaderboardEvent struct {
	BaseEvent
	ActorID   string `json:"actor_id"`
	SubjectID string `json:"subject_id,omitempty"`
}

func (e LeaderboardEvent) Payload() map[string]any {
	return map[string]any{
		"actor_id":   e.ActorID,
		"subject_id": e.SubjectID,
	}
}

// NewLeaderboardEvent creates a new LeaderboardEvent.
func NewLeaderboardEvent(eventType EventType, leaderboardID, actorID, subjectID string) LeaderboardEvent {
	return LeaderboardEvent{
		BaseEvent: NewBaseEvent(eventType, leaderboardID),
		ActorID:   actorID,
		SubjectID: subjectID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
