package progress

import (
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AchievementID - идентификатор достижения.
type AchievementID string

// Predicate - условие открытия достижения.
type Predicate func(p *UserProgress) bool

// Achievement - описание достижения из каталога.
type Achievement struct {
	ID          AchievementID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Icon        string        `json:"icon"`

	// XPReward - награда, начисляемая только при явном сборе.
	XPReward int `json:"xpReward"`

	// Unlocked - условие открытия.
	Unlocked Predicate `json:"-"`
}

// AchievementState - состояние достижения для пользователя.
type AchievementState string

const (
	StateLocked    AchievementState = "locked"
	StateUnlocked  AchievementState = "unlocked"
	StateCollected AchievementState = "collected"
)

// AchievementStatus - достижение вместе с состоянием пользователя.
type AchievementStatus struct {
	Achievement
	State AchievementState `json:"state"`
}

// Catalog - неизменяемый упорядоченный список достижений.
// Порядок определяет порядок проверки и выдачи.
type Catalog struct {
	items []Achievement
	index map[AchievementID]int
}

// NewCatalog проверяет и собирает каталог.
func NewCatalog(items ...Achievement) (*Catalog, error) {
	c := &Catalog{
		items: make([]Achievement, 0, len(items)),
		index: make(map[AchievementID]int, len(items)),
	}
	for _, a := range items {
		if a.ID == "" {
			return nil, fmt.Errorf("catalog: achievement without id")
		}
		if _, dup := c.index[a.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate achievement %q", a.ID)
		}
		if a.XPReward < 0 {
			return nil, fmt.Errorf("catalog: achievement %q has negative reward", a.ID)
		}
		if a.Unlocked == nil {
			return nil, fmt.Errorf("catalog: achievement %q has no predicate", a.ID)
		}
		c.index[a.ID] = len(c.items)
		c.items = append(c.items, a)
	}
	return c, nil
}

// MustCatalog как NewCatalog, но паникует при ошибке.
func MustCatalog(items ...Achievement) *Catalog {
	c, err := NewCatalog(items...)
	if err != nil {
		panic(err)
	}
	return c
}

// All возвращает копию списка достижений.
func (c *Catalog) All() []Achievement {
	return append([]Achievement(nil), c.items...)
}

// Len возвращает размер каталога.
func (c *Catalog) Len() int { return len(c.items) }

// Lookup ищет достижение по id.
func (c *Catalog) Lookup(id AchievementID) (Achievement, bool) {
	i, ok := c.index[id]
	if !ok {
		return Achievement{}, false
	}
	return c.items[i], true
}

// Statuses возвращает все достижения каталога с состоянием для p.
func (c *Catalog) Statuses(p *UserProgress) []AchievementStatus {
	out := make([]AchievementStatus, 0, len(c.items))
	for _, a := range c.items {
		out = append(out, AchievementStatus{Achievement: a, State: p.AchievementState(a.ID)})
	}
	return out
}

// AchievementState возвращает состояние достижения.
func (p *UserProgress) AchievementState(id AchievementID) AchievementState {
	switch {
	case p.IsCollected(id):
		return StateCollected
	case p.HasAchievement(id):
		return StateUnlocked
	default:
		return StateLocked
	}
}

// EvaluateAchievements проверяет ещё не открытые достижения в порядке каталога
// и добавляет выполненные. Награда не начисляется.
func (p *UserProgress) EvaluateAchievements(c *Catalog) []Achievement {
	var unlocked []Achievement
	for _, a := range c.items {
		if p.HasAchievement(a.ID) {
			continue
		}
		if a.Unlocked(p) {
			p.Achievements = append(p.Achievements, a.ID)
			unlocked = append(unlocked, a)
		}
	}
	return unlocked
}

// CollectReward начисляет награду за открытое и ещё не собранное достижение.
// Для неизвестного, закрытого, уже собранного или безнаградного достижения
// возвращает 0 и ничего не меняет. Начисление может открыть новые достижения.
func (p *UserProgress) CollectReward(c *Catalog, id AchievementID) (gained int, unlocked []Achievement) {
	a, ok := c.Lookup(id)
	if !ok || !p.HasAchievement(id) || p.IsCollected(id) || a.XPReward <= 0 {
		return 0, nil
	}

	p.TotalXP += a.XPReward
	p.CollectedAchievements = append(p.CollectedAchievements, id)

	return a.XPReward, p.EvaluateAchievements(c)
}

// AddBonusXP начисляет бонусный опыт. Неположительная сумма игнорируется.
func (p *UserProgress) AddBonusXP(c *Catalog, amount int) []Achievement {
	if amount <= 0 {
		return nil
	}
	p.TotalXP += amount
	return p.EvaluateAchievements(c)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDICATES
// ══════════════════════════════════════════════════════════════════════════════

func QuestionsAnsweredAtLeast(n int) Predicate {
	return func(p *UserProgress) bool { return p.QuestionsAnswered >= n }
}

func DayStreakAtLeast(n int) Predicate {
	return func(p *UserProgress) bool { return p.DayStreak >= n }
}

func AnswerStreakAtLeast(n int) Predicate {
	return func(p *UserProgress) bool { return p.AnswerStreak >= n }
}

func TotalXPAtLeast(n int) Predicate {
	return func(p *UserProgress) bool { return p.TotalXP >= n }
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Идентификаторы стандартного каталога.
const (
	AchievementFirstQuestion AchievementID = "first_question"
	AchievementStreak3       AchievementID = "streak_3"
	AchievementStreak7       AchievementID = "streak_7"
	AchievementStreak30      AchievementID = "streak_30"
	AchievementCombo5        AchievementID = "combo_5"
	AchievementCombo10       AchievementID = "combo_10"
	AchievementCombo20       AchievementID = "combo_20"
	AchievementQuestions100  AchievementID = "questions_100"
	AchievementQuestions250  AchievementID = "questions_250"
	AchievementQuestions500  AchievementID = "questions_500"
	AchievementXP1000        AchievementID = "xp_1000"
)

// DefaultAchievements возвращает стандартный набор достижений.
func DefaultAchievements() []Achievement {
	return []Achievement{
		{ID: AchievementFirstQuestion, Name: "First Step", Description: "Answer your first question", Icon: "🎯", XPReward: 10, Unlocked: QuestionsAnsweredAtLeast(1)},
		{ID: AchievementStreak3, Name: "Warming Up", Description: "Reach a 3-day streak", Icon: "🔥", XPReward: 25, Unlocked: DayStreakAtLeast(3)},
		{ID: AchievementStreak7, Name: "Week Warrior", Description: "Reach a 7-day streak", Icon: "📅", XPReward: 50, Unlocked: DayStreakAtLeast(7)},
		{ID: AchievementStreak30, Name: "Unstoppable", Description: "Reach a 30-day streak", Icon: "🏆", XPReward: 200, Unlocked: DayStreakAtLeast(30)},
		{ID: AchievementCombo5, Name: "On a Roll", Description: "Answer 5 questions correctly in a row", Icon: "✨", XPReward: 25, Unlocked: AnswerStreakAtLeast(5)},
		{ID: AchievementCombo10, Name: "Sharp Mind", Description: "Answer 10 questions correctly in a row", Icon: "⚡", XPReward: 50, Unlocked: AnswerStreakAtLeast(10)},
		{ID: AchievementCombo20, Name: "Flawless", Description: "Answer 20 questions correctly in a row", Icon: "💎", XPReward: 100, Unlocked: AnswerStreakAtLeast(20)},
		{ID: AchievementQuestions100, Name: "Centurion", Description: "Answer 100 questions", Icon: "📚", XPReward: 50, Unlocked: QuestionsAnsweredAtLeast(100)},
		{ID: AchievementQuestions250, Name: "Scholar", Description: "Answer 250 questions", Icon: "🎓", XPReward: 100, Unlocked: QuestionsAnsweredAtLeast(250)},
		{ID: AchievementQuestions500, Name: "Master", Description: "Answer 500 questions", Icon: "🧠", XPReward: 200, Unlocked: QuestionsAnsweredAtLeast(500)},
		{ID: AchievementXP1000, Name: "XP Hunter", Description: "Earn 1000 XP", Icon: "⭐", XPReward: 100, Unlocked: TotalXPAtLeast(1000)},
	}
}

// DefaultCatalog возвращает каталог из DefaultAchievements.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultAchievements()...)
}
