// Package profile описывает удалённый профиль пользователя: статистику
// прогресса, имя пользователя и настройки видимости. Профиль - источник
// истины для рейтингов и для авторизованных пользователей.
package profile

import (
	"context"
	"strings"
	"time"

	"github.com/studyquest/studyquest-core/internal/domain/progress"
	"github.com/studyquest/studyquest-core/internal/domain/shared"
)

// Visibility - настройки приватности пользователя.
type Visibility struct {
	// HideFromGlobal - пользователь не показывается в глобальном рейтинге.
	HideFromGlobal bool `json:"hideFromGlobal"`

	// BlockInvites - пользователя нельзя добавить в приватный рейтинг.
	BlockInvites bool `json:"blockInvites"`
}

// Profile - строка удалённого хранилища профилей.
type Profile struct {
	UserID     string                `json:"userId"`
	Username   string                `json:"username,omitempty"`
	Stats      progress.UserProgress `json:"stats"`
	Visibility Visibility            `json:"visibility"`
	UpdatedAt  time.Time             `json:"updatedAt"`
}

// HasUsername - профиль может участвовать в приватных рейтингах.
func (p *Profile) HasUsername() bool {
	return strings.TrimSpace(p.Username) != ""
}

// Update - частичное обновление профиля. nil-поля не меняются.
// Запись - last-write-wins без версионирования.
type Update struct {
	Stats      *progress.UserProgress
	Username   *string
	Visibility *Visibility
}

// StatsUpdate создаёт обновление только статистики.
func StatsUpdate(p *progress.UserProgress) Update {
	return Update{Stats: p.Clone()}
}

// Merge накладывает next поверх u: заданные в next поля побеждают.
func (u Update) Merge(next Update) Update {
	if next.Stats != nil {
		u.Stats = next.Stats
	}
	if next.Username != nil {
		u.Username = next.Username
	}
	if next.Visibility != nil {
		u.Visibility = next.Visibility
	}
	return u
}

// IsEmpty - обновление ничего не меняет.
func (u Update) IsEmpty() bool {
	return u.Stats == nil && u.Username == nil && u.Visibility == nil
}

// Store - контракт удалённого хранилища профилей.
type Store interface {
	// ReadProfile возвращает профиль; ErrProfileNotFound, если его нет.
	ReadProfile(ctx context.Context, userID string) (*Profile, error)

	// WriteProfile создаёт или частично обновляет профиль.
	WriteProfile(ctx context.Context, userID string, u Update) error

	// ResolveUsername ищет профиль по имени (без учёта регистра).
	ResolveUsername(ctx context.Context, username string) (*Profile, error)

	// GetProfiles возвращает профили по списку id. Отсутствующие пропускаются.
	GetProfiles(ctx context.Context, userIDs []string) ([]*Profile, error)
}

// NormalizeUsername приводит имя к виду, в котором оно хранится и ищется.
func NormalizeUsername(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// Ошибки домена профилей.
var (
	ErrProfileNotFound = shared.NewDomainError("profile", "Read", shared.ErrNotFound, "Profile not found")
	ErrUsernameTaken   = shared.NewDomainError("profile", "Write", shared.ErrAlreadyExists, "Username is already taken")
	ErrInvalidUsername = shared.NewDomainError("profile", "Validate", shared.ErrInvalidInput, "Username must be 3-30 letters, digits or underscores")
)

// ValidateUsername проверяет формат имени пользователя.
func ValidateUsername(s string) error {
	if len(s) < 3 || len(s) > 30 {
		return ErrInvalidUsername
	}
	for _, r := range s {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return ErrInvalidUsername
		}
	}
	return nil
}
