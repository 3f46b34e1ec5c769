package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

func openTestCache(t *testing.T) *ProgressCache {
	t.Helper()

	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "progress.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewProgressCache(db)
}

func TestProgressCache_GetMissing(t *testing.T) {
	c := openTestCache(t)

	p, err := c.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProgressCache_SetGetOverwrite(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	p := progress.New()
	p.TotalXP = 75
	p.QuestionsAnswered = 8
	p.CorrectAnswers = 6
	p.LastQuestionDate = &day
	p.Achievements = []progress.AchievementID{"first_correct"}
	p.AnsweredQuestionIDs = []string{"q1", "q2"}
	require.NoError(t, c.Set(ctx, "u1", p))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 75, got.TotalXP)
	assert.Equal(t, 6, got.CorrectAnswers)
	require.NotNil(t, got.LastQuestionDate)
	assert.True(t, day.Equal(*got.LastQuestionDate))
	assert.Equal(t, []progress.AchievementID{"first_correct"}, got.Achievements)
	assert.Equal(t, []string{"q1", "q2"}, got.AnsweredQuestionIDs)

	p.TotalXP = 90
	require.NoError(t, c.Set(ctx, "u1", p))
	got, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 90, got.TotalXP)
}

func TestProgressCache_Clear(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u1", progress.New()))
	require.NoError(t, c.Set(ctx, "u2", progress.New()))
	require.NoError(t, c.Clear(ctx, "u1"))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Get(ctx, "u2")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestProgressCache_NormalizesStoredData(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO progress_cache (user_id, data, updated_at_unix) VALUES (?, ?, 0)`,
		"u1", `{"totalXP":-5,"questionsAnswered":2,"correctAnswers":4,"collectedAchievements":["xp_100"]}`)
	require.NoError(t, err)

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalXP)
	assert.Equal(t, 2, got.CorrectAnswers)
	assert.Empty(t, got.CollectedAchievements)
	assert.NoError(t, got.Validate())
}

func TestProgressCache_CorruptRow(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO progress_cache (user_id, data, updated_at_unix) VALUES (?, ?, 0)`, "u1", "{not json")
	require.NoError(t, err)

	_, err = c.Get(ctx, "u1")
	assert.Error(t, err)
}
