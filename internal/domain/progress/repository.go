package progress

import "context"

// LocalCache - локальное зеркало прогресса пользователя. Пишется синхронно
// после каждой операции и читается при инициализации.
type LocalCache interface {
	// Get возвращает сохранённый прогресс или (nil, nil), если его нет.
	Get(ctx context.Context, userID string) (*UserProgress, error)

	// Set перезаписывает прогресс пользователя.
	Set(ctx context.Context, userID string, p *UserProgress) error

	// Clear удаляет прогресс пользователя.
	Clear(ctx context.Context, userID string) error
}
