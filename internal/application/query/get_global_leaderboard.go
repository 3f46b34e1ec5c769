// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GLOBAL LEADERBOARD QUERY
// Страница глобального рейтинга без пользователей, скрывших себя.
// ══════════════════════════════════════════════════════════════════════════════

// Размеры страниц по умолчанию.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// PageOptions задаёт размеры страниц рейтинга.
type PageOptions struct {
	// DefaultPageSize - limit, если он не указан.
	DefaultPageSize int

	// MaxPageSize - верхняя граница limit.
	MaxPageSize int
}

func (o PageOptions) normalize() PageOptions {
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = MaxPageSize
	}
	if o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = o.MaxPageSize
	}
	return o
}

// GetGlobalLeaderboardQuery содержит параметры страницы.
type GetGlobalLeaderboardQuery struct {
	// Metric - метрика сортировки.
	Metric leaderboard.Metric

	// Limit - размер страницы (0 = по умолчанию).
	Limit int

	// Offset - смещение от начала рейтинга.
	Offset int
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetGlobalLeaderboardQuery) Validate(opts PageOptions) error {
	if q.Metric == "" {
		q.Metric = leaderboard.MetricTotalXP
	}
	if !q.Metric.IsValid() {
		return leaderboard.ErrInvalidMetric
	}
	if q.Offset < 0 {
		return shared.NewDomainError("query", "GetGlobalLeaderboard", shared.ErrValueOutOfRange, "Offset cannot be negative")
	}
	if q.Limit <= 0 {
		q.Limit = opts.DefaultPageSize
	}
	if q.Limit > opts.MaxPageSize {
		q.Limit = opts.MaxPageSize
	}
	return nil
}

// GetGlobalLeaderboardResult - страница рейтинга.
type GetGlobalLeaderboardResult struct {
	Metric      leaderboard.Metric  `json:"metric"`
	Entries     []leaderboard.Entry `json:"entries"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// GetGlobalLeaderboardHandler обрабатывает запросы глобального рейтинга.
type GetGlobalLeaderboardHandler struct {
	source leaderboard.RankingSource
	opts   PageOptions
}

// NewGetGlobalLeaderboardHandler создаёт новый обработчик.
func NewGetGlobalLeaderboardHandler(source leaderboard.RankingSource, opts PageOptions) *GetGlobalLeaderboardHandler {
	return &GetGlobalLeaderboardHandler{source: source, opts: opts.normalize()}
}

// Handle выполняет запрос.
//
// Скрытые пользователи отфильтровываются после выборки, поэтому при их
// наличии запрашивается больше строк (leaderboard.OverFetch). Ранги
// присваиваются по итоговому порядку: offset+1, offset+2, ...
func (h *GetGlobalLeaderboardHandler) Handle(ctx context.Context, query GetGlobalLeaderboardQuery) (*GetGlobalLeaderboardResult, error) {
	if err := query.Validate(h.opts); err != nil {
		return nil, err
	}

	hidden, err := h.source.HiddenUserIDs(ctx)
	if err != nil {
		return nil, storeError("GetGlobalLeaderboard", err)
	}

	rows, err := h.source.QueryRanked(ctx, query.Metric, leaderboard.OverFetch(query.Limit, len(hidden)), query.Offset)
	if err != nil {
		return nil, storeError("GetGlobalLeaderboard", err)
	}

	entries := leaderboard.ExcludeHidden(rows, hidden)
	if len(entries) > query.Limit {
		entries = entries[:query.Limit]
	}
	leaderboard.AssignRanks(entries, query.Offset+1)

	return &GetGlobalLeaderboardResult{
		Metric:      query.Metric,
		Entries:     entries,
		Limit:       query.Limit,
		Offset:      query.Offset,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// storeError оборачивает ошибку хранилища, сохраняя доменные ошибки как есть.
func storeError(op string, err error) error {
	if _, ok := shared.UserMessage(err); ok {
		return err
	}
	return shared.WrapError("query", op, shared.ErrExternalService, "Leaderboard is temporarily unavailable", err)
}
