package leaderboard

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// RankingSource - источник данных для глобального рейтинга.
// Реализация находится в infrastructure слое (PostgreSQL, память).
type RankingSource interface {
	// HiddenUserIDs возвращает множество пользователей, скрытых из глобального рейтинга.
	HiddenUserIDs(ctx context.Context) (map[string]struct{}, error)

	// QueryRanked возвращает профили, отсортированные по метрике в порядке Less.
	// limit <= 0 означает все строки. Rank в ответе не заполняется.
	QueryRanked(ctx context.Context, m Metric, limit, offset int) ([]Entry, error)
}

// PrivateLeaderboardStore - хранилище приватных рейтингов и участников.
// Каждая изменяющая операция выполняется атомарно.
type PrivateLeaderboardStore interface {
	// ──────────────────────────────────────────────────────────────────────────
	// LEADERBOARDS
	// ──────────────────────────────────────────────────────────────────────────

	// Create сохраняет рейтинг и добавляет владельца первым участником.
	Create(ctx context.Context, lb *PrivateLeaderboard) error

	// Get возвращает рейтинг с числом участников; ErrLeaderboardNotFound, если нет.
	Get(ctx context.Context, id string) (*PrivateLeaderboard, error)

	// Delete удаляет рейтинг вместе со всеми участиями.
	Delete(ctx context.Context, id string) error

	// ListForUser возвращает рейтинги, в которых состоит пользователь.
	ListForUser(ctx context.Context, userID string) ([]*PrivateLeaderboard, error)

	// ──────────────────────────────────────────────────────────────────────────
	// MEMBERS
	// ──────────────────────────────────────────────────────────────────────────

	// ListMembers возвращает участия в порядке вступления.
	ListMembers(ctx context.Context, id string) ([]Membership, error)

	// IsMember проверяет участие.
	IsMember(ctx context.Context, id, userID string) (bool, error)

	// AddMember добавляет участника, если в рейтинге меньше MaxMembers
	// участников (ErrLeaderboardFull) и пользователь ещё не участник (ErrAlreadyMember).
	AddMember(ctx context.Context, id, userID string) error

	// RemoveMember удаляет участника. Владельца удалить нельзя (ErrCannotRemoveOwner),
	// отсутствующий участник - ErrMemberNotFound.
	RemoveMember(ctx context.Context, id, userID string) error

	// TransferOwnership меняет владельца, если requesterID всё ещё владелец
	// (иначе ErrNotOwner), а newOwnerID - участник (иначе ErrNewOwnerNotMember).
	// Проверки и смена выполняются атомарно. Состав участников не меняется.
	TransferOwnership(ctx context.Context, id, requesterID, newOwnerID string) error
}
