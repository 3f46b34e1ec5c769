package query

import (
	"context"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRIVATE LEADERBOARD QUERIES
// Участники приватного рейтинга, сам рейтинг и список рейтингов пользователя.
// Фильтр скрытых пользователей внутри группы не применяется.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileBatchReader читает профили пачкой.
type ProfileBatchReader interface {
	GetProfiles(ctx context.Context, userIDs []string) ([]*profile.Profile, error)
}

// GetPrivateLeaderboardMembersQuery содержит параметры запроса участников.
type GetPrivateLeaderboardMembersQuery struct {
	LeaderboardID string
	Metric        leaderboard.Metric
}

// Validate проверяет параметры.
func (q *GetPrivateLeaderboardMembersQuery) Validate() error {
	if q.LeaderboardID == "" {
		return leaderboard.ErrLeaderboardNotFound
	}
	if q.Metric == "" {
		q.Metric = leaderboard.MetricTotalXP
	}
	if !q.Metric.IsValid() {
		return leaderboard.ErrInvalidMetric
	}
	return nil
}

// GetPrivateLeaderboardMembersResult - участники с рангами 1..M.
type GetPrivateLeaderboardMembersResult struct {
	Leaderboard *leaderboard.PrivateLeaderboard `json:"leaderboard"`
	Metric      leaderboard.Metric              `json:"metric"`
	Entries     []leaderboard.Entry             `json:"entries"`
}

// GetPrivateLeaderboardMembersHandler обрабатывает запросы участников.
type GetPrivateLeaderboardMembersHandler struct {
	store    leaderboard.PrivateLeaderboardStore
	profiles ProfileBatchReader
}

// NewGetPrivateLeaderboardMembersHandler создаёт новый обработчик.
func NewGetPrivateLeaderboardMembersHandler(store leaderboard.PrivateLeaderboardStore, profiles ProfileBatchReader) *GetPrivateLeaderboardMembersHandler {
	return &GetPrivateLeaderboardMembersHandler{store: store, profiles: profiles}
}

// Handle выполняет запрос.
func (h *GetPrivateLeaderboardMembersHandler) Handle(ctx context.Context, query GetPrivateLeaderboardMembersQuery) (*GetPrivateLeaderboardMembersResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	lb, err := h.store.Get(ctx, query.LeaderboardID)
	if err != nil {
		return nil, storeError("GetPrivateLeaderboardMembers", err)
	}

	members, err := h.store.ListMembers(ctx, query.LeaderboardID)
	if err != nil {
		return nil, storeError("GetPrivateLeaderboardMembers", err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	profiles, err := h.profiles.GetProfiles(ctx, ids)
	if err != nil {
		return nil, storeError("GetPrivateLeaderboardMembers", err)
	}
	byID := make(map[string]*profile.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p
	}

	// Участник без профиля остаётся в группе с нулевыми показателями
	entries := make([]leaderboard.Entry, 0, len(members))
	for _, m := range members {
		joined := m.JoinedAt
		e := leaderboard.Entry{UserID: m.UserID, JoinedAt: &joined}
		if p, ok := byID[m.UserID]; ok {
			e.Username = p.Username
			e.TotalXP = p.Stats.TotalXP
			e.DayStreak = p.Stats.DayStreak
		}
		entries = append(entries, e)
	}

	leaderboard.Sort(entries, query.Metric)
	leaderboard.AssignRanks(entries, 1)

	return &GetPrivateLeaderboardMembersResult{
		Leaderboard: lb,
		Metric:      query.Metric,
		Entries:     entries,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────

// GetPrivateLeaderboardHandler возвращает один рейтинг с числом участников.
type GetPrivateLeaderboardHandler struct {
	store leaderboard.PrivateLeaderboardStore
}

// NewGetPrivateLeaderboardHandler создаёт новый обработчик.
func NewGetPrivateLeaderboardHandler(store leaderboard.PrivateLeaderboardStore) *GetPrivateLeaderboardHandler {
	return &GetPrivateLeaderboardHandler{store: store}
}

// Handle выполняет запрос.
func (h *GetPrivateLeaderboardHandler) Handle(ctx context.Context, leaderboardID string) (*leaderboard.PrivateLeaderboard, error) {
	if leaderboardID == "" {
		return nil, leaderboard.ErrLeaderboardNotFound
	}
	lb, err := h.store.Get(ctx, leaderboardID)
	if err != nil {
		return nil, storeError("GetPrivateLeaderboard", err)
	}
	return lb, nil
}

// ──────────────────────────────────────────────────────────────────────────────

// ListUserLeaderboardsHandler возвращает рейтинги, в которых состоит пользователь.
type ListUserLeaderboardsHandler struct {
	store leaderboard.PrivateLeaderboardStore
}

// NewListUserLeaderboardsHandler создаёт новый обработчик.
func NewListUserLeaderboardsHandler(store leaderboard.PrivateLeaderboardStore) *ListUserLeaderboardsHandler {
	return &ListUserLeaderboardsHandler{store: store}
}

// Handle выполняет запрос.
func (h *ListUserLeaderboardsHandler) Handle(ctx context.Context, userID string) ([]*leaderboard.PrivateLeaderboard, error) {
	if userID == "" {
		return nil, leaderboard.ErrInvalidUserID
	}
	boards, err := h.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, storeError("ListUserLeaderboards", err)
	}
	if boards == nil {
		boards = []*leaderboard.PrivateLeaderboard{}
	}
	return boards, nil
}
