// Package progress содержит доменную модель прогресса пользователя:
// накопленную статистику практики, серию дней с дневной целью, серию
// правильных ответов и двухфазные достижения (открыто / награда получена).
//
// Пакет не выполняет ввод-вывод: все переходы синхронные и детерминированные,
// текущий календарный день передаётся снаружи.
package progress

import (
	"fmt"
	"slices"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// XPCorrectAnswer - XP за правильный ответ.
	XPCorrectAnswer = 10

	// XPIncorrectAnswer - XP за неправильный ответ (сниженная, но ненулевая награда).
	XPIncorrectAnswer = 5

	// MaxAnsweredQuestionIDs - предел множества отвеченных вопросов.
	// При переполнении вытесняются самые старые идентификаторы.
	MaxAnsweredQuestionIDs = 10_000

	// DefaultDailyQuestionGoal - сколько вопросов нужно ответить за день,
	// чтобы день засчитался в серию.
	DefaultDailyQuestionGoal = 10
)

// ══════════════════════════════════════════════════════════════════════════════
// USER PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// UserProgress - накопленная статистика практики одного пользователя.
// Даты хранятся как календарные дни (см. timeutil.CalendarDay).
type UserProgress struct {
	// TotalXP - суммарный опыт.
	TotalXP int `json:"totalXP"`

	// DayStreak - количество подряд идущих дней с выполненной дневной целью.
	DayStreak int `json:"dayStreak"`

	// QuestionsAnswered - всего отвечено вопросов.
	QuestionsAnswered int `json:"questionsAnswered"`

	// CorrectAnswers - из них правильно.
	CorrectAnswers int `json:"correctAnswers"`

	// AnswerStreak - текущая серия правильных ответов подряд.
	AnswerStreak int `json:"answerStreak"`

	// LastQuestionDate - день последнего ответа.
	LastQuestionDate *time.Time `json:"lastQuestionDate"`

	// QuestionsAnsweredToday - ответов за LastQuestionDate.
	QuestionsAnsweredToday int `json:"questionsAnsweredToday"`

	// LastValidStreakDate - последний день, когда дневная цель была выполнена.
	LastValidStreakDate *time.Time `json:"lastValidStreakDate"`

	// Achievements - открытые достижения. Множество только растёт.
	Achievements []AchievementID `json:"achievements"`

	// CollectedAchievements - достижения, награда за которые уже начислена.
	// Всегда подмножество Achievements.
	CollectedAchievements []AchievementID `json:"collectedAchievements"`

	// AnsweredQuestionIDs - правильно отвеченные вопросы, от старых к новым.
	AnsweredQuestionIDs []string `json:"answeredQuestionIds"`
}

// New создаёт нулевой прогресс.
func New() *UserProgress {
	return &UserProgress{
		Achievements:          []AchievementID{},
		CollectedAchievements: []AchievementID{},
		AnsweredQuestionIDs:   []string{},
	}
}

// Clone возвращает глубокую копию.
func (p *UserProgress) Clone() *UserProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.LastQuestionDate = cloneDay(p.LastQuestionDate)
	c.LastValidStreakDate = cloneDay(p.LastValidStreakDate)
	c.Achievements = append([]AchievementID{}, p.Achievements...)
	c.CollectedAchievements = append([]AchievementID{}, p.CollectedAchievements...)
	c.AnsweredQuestionIDs = append([]string{}, p.AnsweredQuestionIDs...)
	return &c
}

// Normalize приводит прогресс, пришедший из хранилища, к инвариантам:
// отрицательные счётчики обнуляются, nil-срезы заменяются пустыми,
// собранные достижения без открытия отбрасываются, множество вопросов обрезается.
func (p *UserProgress) Normalize() {
	for _, v := range []*int{
		&p.TotalXP, &p.DayStreak, &p.QuestionsAnswered,
		&p.CorrectAnswers, &p.AnswerStreak, &p.QuestionsAnsweredToday,
	} {
		if *v < 0 {
			*v = 0
		}
	}
	if p.CorrectAnswers > p.QuestionsAnswered {
		p.CorrectAnswers = p.QuestionsAnswered
	}
	if p.Achievements == nil {
		p.Achievements = []AchievementID{}
	}
	if p.AnsweredQuestionIDs == nil {
		p.AnsweredQuestionIDs = []string{}
	}

	collected := make([]AchievementID, 0, len(p.CollectedAchievements))
	for _, id := range p.CollectedAchievements {
		if p.HasAchievement(id) && !slices.Contains(collected, id) {
			collected = append(collected, id)
		}
	}
	p.CollectedAchievements = collected

	if n := len(p.AnsweredQuestionIDs); n > MaxAnsweredQuestionIDs {
		p.AnsweredQuestionIDs = append([]string{}, p.AnsweredQuestionIDs[n-MaxAnsweredQuestionIDs:]...)
	}
}

// Validate проверяет инварианты модели.
func (p *UserProgress) Validate() error {
	switch {
	case p.TotalXP < 0, p.DayStreak < 0, p.QuestionsAnswered < 0,
		p.CorrectAnswers < 0, p.AnswerStreak < 0, p.QuestionsAnsweredToday < 0:
		return fmt.Errorf("progress: negative counter")
	case p.CorrectAnswers > p.QuestionsAnswered:
		return fmt.Errorf("progress: correct answers %d exceed answered %d", p.CorrectAnswers, p.QuestionsAnswered)
	case len(p.AnsweredQuestionIDs) > MaxAnsweredQuestionIDs:
		return fmt.Errorf("progress: %d answered ids exceed cap", len(p.AnsweredQuestionIDs))
	}
	for _, id := range p.CollectedAchievements {
		if !p.HasAchievement(id) {
			return fmt.Errorf("progress: achievement %q collected but not unlocked", id)
		}
	}
	return nil
}

// HasAchievement возвращает true, если достижение открыто.
func (p *UserProgress) HasAchievement(id AchievementID) bool {
	return slices.Contains(p.Achievements, id)
}

// IsCollected возвращает true, если награда за достижение уже получена.
func (p *UserProgress) IsCollected(id AchievementID) bool {
	return slices.Contains(p.CollectedAchievements, id)
}

// Accuracy возвращает долю правильных ответов в процентах.
func (p *UserProgress) Accuracy() float64 {
	if p.QuestionsAnswered == 0 {
		return 0
	}
	return float64(p.CorrectAnswers) * 100 / float64(p.QuestionsAnswered)
}

func cloneDay(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
