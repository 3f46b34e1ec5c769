package progress

import (
	"slices"
	"time"

	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// Practice - один ответ на вопрос.
type Practice struct {
	// Correct - ответ правильный.
	Correct bool

	// QuestionID - идентификатор вопроса (может быть пустым).
	QuestionID string

	// Today - календарный день ответа.
	Today time.Time

	// DailyGoal - дневная цель для зачёта дня в серию.
	DailyGoal int
}

// PracticeOutcome - результат записи ответа.
type PracticeOutcome struct {
	// XPGained - начисленный опыт.
	XPGained int

	// NewAchievements - достижения, открытые этим ответом.
	NewAchievements []Achievement

	// GoalReached - дневная цель достигнута именно этим ответом.
	GoalReached bool

	// Streak - переход серии дней (нулевой, если цель не достигнута).
	Streak StreakChange
}

// RecordPractice применяет ответ к прогрессу.
//
// Переход серии дней срабатывает по фронту: только на том ответе, на котором
// дневной счётчик становится равен цели. Последующие ответы в тот же день
// серию не меняют.
func (p *UserProgress) RecordPractice(in Practice, c *Catalog) PracticeOutcome {
	var out PracticeOutcome

	goal := in.DailyGoal
	if goal < 1 {
		goal = DefaultDailyQuestionGoal
	}

	// Новый день - дневной счётчик с нуля
	if !timeutil.SameDay(p.LastQuestionDate, in.Today) {
		p.QuestionsAnsweredToday = 0
	}

	p.QuestionsAnswered++
	p.QuestionsAnsweredToday++
	day := in.Today
	p.LastQuestionDate = &day

	if p.QuestionsAnsweredToday == goal {
		out.GoalReached = true
		out.Streak = p.AdvanceDayStreak(in.Today)
	}

	if in.Correct {
		p.CorrectAnswers++
		p.AnswerStreak++
		if in.QuestionID != "" {
			p.RememberQuestion(in.QuestionID)
		}
		out.XPGained = XPCorrectAnswer
	} else {
		p.AnswerStreak = 0
		out.XPGained = XPIncorrectAnswer
	}
	p.TotalXP += out.XPGained

	out.NewAchievements = p.EvaluateAchievements(c)
	return out
}

// RememberQuestion добавляет вопрос в множество отвеченных.
// Возвращает false, если вопрос уже там. При превышении предела
// вытесняются самые старые записи.
func (p *UserProgress) RememberQuestion(id string) bool {
	if slices.Contains(p.AnsweredQuestionIDs, id) {
		return false
	}
	p.AnsweredQuestionIDs = append(p.AnsweredQuestionIDs, id)
	if over := len(p.AnsweredQuestionIDs) - MaxAnsweredQuestionIDs; over > 0 {
		p.AnsweredQuestionIDs = slices.Delete(p.AnsweredQuestionIDs, 0, over)
	}
	return true
}

// HasAnswered возвращает true, если вопрос уже отвечен правильно.
func (p *UserProgress) HasAnswered(id string) bool {
	return slices.Contains(p.AnsweredQuestionIDs, id)
}

// Reset возвращает прогресс к нулевому состоянию.
func (p *UserProgress) Reset() {
	*p = *New()
}
