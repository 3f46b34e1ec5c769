package query

import (
	"context"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Позиция пользователя и окно из соседей (до двух сверху и снизу).
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery содержит параметры запроса позиции.
type GetUserRankQuery struct {
	UserID string
	Metric leaderboard.Metric
}

// Validate проверяет параметры.
func (q *GetUserRankQuery) Validate() error {
	if q.UserID == "" {
		return leaderboard.ErrInvalidUserID
	}
	if q.Metric == "" {
		q.Metric = leaderboard.MetricTotalXP
	}
	if !q.Metric.IsValid() {
		return leaderboard.ErrInvalidMetric
	}
	return nil
}

// GetUserRankResult - позиция пользователя.
//
// Hidden=true означает, что ранг есть, но пользователь его скрыл; Rank=nil при
// Hidden=false означает, что пользователя нет в рейтинге.
type GetUserRankResult struct {
	Metric  leaderboard.Metric  `json:"metric"`
	Rank    *int                `json:"rank"`
	Entries []leaderboard.Entry `json:"entries"`
	Hidden  bool                `json:"hidden"`
	Total   int                 `json:"total"`
}

// GetUserRankHandler обрабатывает запросы позиции пользователя.
type GetUserRankHandler struct {
	source leaderboard.RankingSource
}

// NewGetUserRankHandler создаёт новый обработчик.
func NewGetUserRankHandler(source leaderboard.RankingSource) *GetUserRankHandler {
	return &GetUserRankHandler{source: source}
}

// Handle выполняет запрос.
func (h *GetUserRankHandler) Handle(ctx context.Context, query GetUserRankQuery) (*GetUserRankResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	hidden, err := h.source.HiddenUserIDs(ctx)
	if err != nil {
		return nil, storeError("GetUserRank", err)
	}

	res := &GetUserRankResult{Metric: query.Metric, Entries: []leaderboard.Entry{}}

	// Скрытый пользователь: ранг намеренно не раскрывается
	if _, ok := hidden[query.UserID]; ok {
		res.Hidden = true
		return res, nil
	}

	rows, err := h.source.QueryRanked(ctx, query.Metric, 0, 0)
	if err != nil {
		return nil, storeError("GetUserRank", err)
	}

	population := leaderboard.ExcludeHidden(rows, hidden)
	res.Total = len(population)

	i := leaderboard.IndexOf(population, query.UserID)
	if i < 0 {
		return res, nil
	}

	rank := i + 1
	res.Rank = &rank

	from, to := leaderboard.Window(i, len(population))
	window := make([]leaderboard.Entry, 0, to-from)
	for j := from; j < to; j++ {
		e := population[j]
		e.Rank = j + 1
		window = append(window, e)
	}
	res.Entries = window

	return res, nil
}
