// Package leaderboard содержит доменную модель рейтингов: глобальный рейтинг
// по метрике, окно вокруг позиции пользователя и приватные рейтинги групп.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRIC
// ══════════════════════════════════════════════════════════════════════════════

// Metric - показатель, по которому строится рейтинг.
type Metric string

const (
	// MetricTotalXP - суммарный опыт.
	MetricTotalXP Metric = "totalXP"

	// MetricDayStreak - серия дней.
	MetricDayStreak Metric = "dayStreak"
)

// ParseMetric разбирает метрику. Пустая строка означает MetricTotalXP.
func ParseMetric(s string) (Metric, error) {
	switch strings.TrimSpace(s) {
	case "", string(MetricTotalXP), "total_xp", "xp":
		return MetricTotalXP, nil
	case string(MetricDayStreak), "day_streak", "streak":
		return MetricDayStreak, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMetric, s)
	}
}

// IsValid проверяет, что метрика известна.
func (m Metric) IsValid() bool {
	return m == MetricTotalXP || m == MetricDayStreak
}

// Column возвращает имя столбца хранилища для метрики.
func (m Metric) Column() string {
	if m == MetricDayStreak {
		return "day_streak"
	}
	return "total_xp"
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - одна строка рейтинга.
type Entry struct {
	// UserID - идентификатор пользователя.
	UserID string `json:"userId"`

	// Username - отображаемое имя (может быть пустым).
	Username string `json:"username"`

	// TotalXP - суммарный опыт.
	TotalXP int `json:"totalXP"`

	// DayStreak - серия дней.
	DayStreak int `json:"dayStreak"`

	// Rank - позиция, начиная с 1. Присваивается после сортировки.
	Rank int `json:"rank"`

	// JoinedAt - время вступления (только для приватных рейтингов).
	JoinedAt *time.Time `json:"joinedAt,omitempty"`
}

// Value возвращает значение метрики для записи.
func (e *Entry) Value(m Metric) int {
	if m == MetricDayStreak {
		return e.DayStreak
	}
	return e.TotalXP
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Less задаёт порядок рейтинга: метрика по убыванию, затем имя по алфавиту
// (пустые имена в конце), затем id. Хранилища обязаны сортировать так же.
func Less(m Metric, a, b *Entry) bool {
	if va, vb := a.Value(m), b.Value(m); va != vb {
		return va > vb
	}
	if a.Username != b.Username {
		switch {
		case a.Username == "":
			return false
		case b.Username == "":
			return true
		}
		return a.Username < b.Username
	}
	return a.UserID < b.UserID
}

// Sort сортирует записи по метрике.
func Sort(entries []Entry, m Metric) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(m, &entries[i], &entries[j])
	})
}

// AssignRanks проставляет позиции start, start+1, ... в порядке списка.
func AssignRanks(entries []Entry, start int) {
	for i := range entries {
		entries[i].Rank = start + i
	}
}

// WindowBefore и WindowAfter - сколько соседей показывать вокруг пользователя.
const (
	WindowBefore = 2
	WindowAfter  = 2
)

// Window возвращает границы окна [from, to) вокруг индекса i в списке длины n:
// [max(0, i-2), min(n, i+3)).
func Window(i, n int) (from, to int) {
	from = max(0, i-WindowBefore)
	to = min(n, i+WindowAfter+1)
	return from, to
}

// IndexOf возвращает индекс пользователя или -1.
func IndexOf(entries []Entry, userID string) int {
	for i := range entries {
		if entries[i].UserID == userID {
			return i
		}
	}
	return -1
}

// ExcludeHidden удаляет скрытых пользователей, сохраняя порядок.
func ExcludeHidden(entries []Entry, hidden map[string]struct{}) []Entry {
	if len(hidden) == 0 {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, skip := hidden[e.UserID]; !skip {
			out = append(out, e)
		}
	}
	return out
}

// OverFetch возвращает, сколько строк запросить у хранилища, чтобы после
// удаления скрытых пользователей осталось не меньше limit.
func OverFetch(limit, hidden int) int {
	if hidden == 0 {
		return limit
	}
	return limit + max(limit, hidden)
}
