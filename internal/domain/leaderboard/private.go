package leaderboard

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/studyquest/studyquest-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRIVATE LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultMaxMembers - предел участников приватного рейтинга.
	DefaultMaxMembers = 50

	// MaxNameLength и MaxDescriptionLength - ограничения на название и описание.
	MaxNameLength        = 50
	MaxDescriptionLength = 200
)

// PrivateLeaderboard - рейтинг закрытой группы пользователей.
// Владелец всегда является участником.
type PrivateLeaderboard struct {
	// ID - идентификатор (UUID).
	ID string `json:"id"`

	// OwnerID - единственный владелец.
	OwnerID string `json:"ownerId"`

	// Name - название группы.
	Name string `json:"name"`

	// Description - необязательное описание.
	Description string `json:"description,omitempty"`

	// MaxMembers - предел участников.
	MaxMembers int `json:"maxMembers"`

	// MemberCount - текущее число участников (заполняется при чтении).
	MemberCount int `json:"memberCount"`

	// CreatedAt - время создания.
	CreatedAt time.Time `json:"createdAt"`
}

// NewPrivateLeaderboard проверяет поля и создаёт рейтинг.
// id генерируется вызывающим кодом.
func NewPrivateLeaderboard(id, ownerID, name, description string, maxMembers int, now time.Time) (*PrivateLeaderboard, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidUserID
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrInvalidName
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return nil, ErrInvalidDescription
	}
	if maxMembers < 2 {
		maxMembers = DefaultMaxMembers
	}

	return &PrivateLeaderboard{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		MaxMembers:  maxMembers,
		MemberCount: 1,
		CreatedAt:   now.UTC(),
	}, nil
}

// IsOwner возвращает true, если userID - владелец.
func (lb *PrivateLeaderboard) IsOwner(userID string) bool {
	return lb.OwnerID == userID
}

// IsFull возвращает true, если мест больше нет.
func (lb *PrivateLeaderboard) IsFull() bool {
	return lb.MemberCount >= lb.MaxMembers
}

// Membership - участие пользователя в приватном рейтинге.
type Membership struct {
	LeaderboardID string    `json:"leaderboardId"`
	UserID        string    `json:"userId"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Ошибки домена рейтингов. Message - текст для пользователя.
var (
	ErrInvalidMetric      = shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidInput, "Unknown leaderboard metric")
	ErrInvalidUserID      = shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidID, "User id is required")
	ErrInvalidName        = shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidInput, "Leaderboard name must be 1-50 characters")
	ErrInvalidDescription = shared.NewDomainError("leaderboard", "Validate", shared.ErrInvalidInput, "Description must be at most 200 characters")
	ErrInvalidUsername    = shared.NewDomainError("leaderboard", "Validate", shared.ErrEmptyValue, "Username is required")

	ErrLeaderboardNotFound = shared.NewDomainError("leaderboard", "Find", shared.ErrNotFound, "Leaderboard not found")
	ErrUserNotFound        = shared.NewDomainError("leaderboard", "ResolveUser", shared.ErrNotFound, "User not found")
	ErrMemberNotFound      = shared.NewDomainError("leaderboard", "FindMember", shared.ErrNotFound, "User is not a member of this leaderboard")

	ErrNotMember         = shared.NewDomainError("leaderboard", "AddMember", shared.ErrForbidden, "You must be a member to add others")
	ErrNotOwner          = shared.NewDomainError("leaderboard", "CheckOwner", shared.ErrForbidden, "Only the owner can do this")
	ErrInvitesDisabled   = shared.NewDomainError("leaderboard", "AddMember", shared.ErrForbidden, "This user is not accepting leaderboard invites")
	ErrCannotRemoveOwner = shared.NewDomainError("leaderboard", "RemoveMember", shared.ErrConflict, "Cannot remove owner. Transfer ownership first.")
	ErrOwnerCannotLeave  = shared.NewDomainError("leaderboard", "Leave", shared.ErrConflict, "Owner cannot leave. Transfer ownership first.")
	ErrNewOwnerNotMember = shared.NewDomainError("leaderboard", "TransferOwnership", shared.ErrConflict, "New owner must be a member of the leaderboard")
	ErrAlreadyOwner      = shared.NewDomainError("leaderboard", "TransferOwnership", shared.ErrConflict, "User already owns this leaderboard")

	ErrLeaderboardFull = shared.NewDomainError("leaderboard", "AddMember", shared.ErrCapacity, "Leaderboard is full")
	ErrAlreadyMember   = shared.NewDomainError("leaderboard", "AddMember", shared.ErrAlreadyExists, "User is already a member")
)
