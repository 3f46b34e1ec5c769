package progress

import (
	"time"

	"github.com/studyquest/studyquest-core/pkg/timeutil"
)

// StreakChange описывает результат перехода серии дней.
type StreakChange struct {
	// Previous - значение DayStreak до перехода.
	Previous int

	// Current - значение после перехода.
	Current int

	// Changed - изменилось ли значение.
	Changed bool
}

// AdvanceDayStreak применяет переход серии дней в момент, когда дневная цель
// выполнена (today - календарный день):
//
//	LastValidStreakDate == nil      -> серия = 1
//	LastValidStreakDate == вчера    -> серия + 1
//	LastValidStreakDate == сегодня  -> без изменений
//	иначе (пропуск)                 -> серия = 1
func (p *UserProgress) AdvanceDayStreak(today time.Time) StreakChange {
	prev := p.DayStreak

	if p.LastValidStreakDate != nil {
		switch timeutil.DaysBetween(*p.LastValidStreakDate, today) {
		case 0:
			// Тот же день - ничего не меняем
			return StreakChange{Previous: prev, Current: prev}
		case 1:
			// Следующий день - продолжаем серию
			p.DayStreak++
		default:
			// Пропущены дни - начинаем заново
			p.DayStreak = 1
		}
	} else {
		p.DayStreak = 1
	}

	day := today
	p.LastValidStreakDate = &day

	return StreakChange{Previous: prev, Current: p.DayStreak, Changed: p.DayStreak != prev}
}

// StreakValidation - результат проверки серии при загрузке.
type StreakValidation struct {
	// Changed - прогресс был изменён и его нужно сохранить.
	Changed bool

	// BrokenStreak - ненулевая серия, которая была сброшена (0 если нет).
	BrokenStreak int
}

// ValidateStreak приводит дневные счётчики к текущему дню:
//   - если последний ответ был не сегодня, дневной счётчик обнуляется;
//   - если последний засчитанный день не сегодня и не вчера, серия сбрасывается;
//   - если засчитанного дня нет, а последний ответ старше вчерашнего, серия сбрасывается.
func (p *UserProgress) ValidateStreak(today time.Time) StreakValidation {
	var res StreakValidation

	if !timeutil.SameDay(p.LastQuestionDate, today) && p.QuestionsAnsweredToday != 0 {
		p.QuestionsAnsweredToday = 0
		res.Changed = true
	}

	switch v := p.LastValidStreakDate; {
	case v != nil:
		if timeutil.SameDay(v, today) || timeutil.IsDayBefore(v, today) {
			break
		}
		res.BrokenStreak = p.DayStreak
		p.DayStreak = 0
		p.LastValidStreakDate = nil
		res.Changed = true

	case p.LastQuestionDate != nil && timeutil.DaysBetween(*p.LastQuestionDate, today) > 1:
		if p.DayStreak != 0 {
			res.BrokenStreak = p.DayStreak
			p.DayStreak = 0
			res.Changed = true
		}
	}

	return res
}

// StreakExpired сообщает, что серия уже не может быть продолжена:
// последний засчитанный день старше вчерашнего.
func StreakExpired(lastValid *time.Time, today time.Time) bool {
	return lastValid != nil && timeutil.DaysBetween(*lastValid, today) > 1
}
