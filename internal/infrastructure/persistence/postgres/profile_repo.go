package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyquest/studyquest-core/internal/domain/leaderboard"
	"github.com/studyquest/studyquest-core/internal/domain/profile"
	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Store and leaderboard.RankingSource.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `
	user_id, COALESCE(username, ''),
	total_xp, day_streak, questions_answered, correct_answers, answer_streak,
	last_question_date, questions_answered_today, last_valid_streak_date,
	achievements, collected_achievements, answered_question_ids,
	hide_from_global, block_invites, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// profile.Store
// ─────────────────────────────────────────────────────────────────────────────

// ReadProfile returns a profile by user ID.
func (r *ProfileRepository) ReadProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	return scanProfile(row)
}

// ResolveUsername returns the profile owning username, case-insensitively.
func (r *ProfileRepository) ResolveUsername(ctx context.Context, username string) (*profile.Profile, error) {
	name := profile.NormalizeUsername(username)
	if name == "" {
		return nil, profile.ErrProfileNotFound
	}
	row := r.conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE LOWER(username) = LOWER($1)`, name)
	return scanProfile(row)
}

// GetProfiles returns the profiles that exist among userIDs.
func (r *ProfileRepository) GetProfiles(ctx context.Context, userIDs []string) ([]*profile.Profile, error) {
	if len(userIDs) == 0 {
		return []*profile.Profile{}, nil
	}

	rows, err := r.conn.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	out := make([]*profile.Profile, 0, len(userIDs))
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WriteProfile upserts the fields present in u. Absent fields keep their
// stored values.
func (r *ProfileRepository) WriteProfile(ctx context.Context, userID string, u profile.Update) error {
	if u.IsEmpty() {
		return nil
	}

	cols := []string{"user_id"}
	args := []any{userID}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}

	if s := u.Stats; s != nil {
		add("total_xp", s.TotalXP)
		add("day_streak", s.DayStreak)
		add("questions_answered", s.QuestionsAnswered)
		add("correct_answers", s.CorrectAnswers)
		add("answer_streak", s.AnswerStreak)
		add("last_question_date", s.LastQuestionDate)
		add("questions_answered_today", s.QuestionsAnsweredToday)
		add("last_valid_streak_date", s.LastValidStreakDate)
		add("achievements", idsToStrings(s.Achievements))
		add("collected_achievements", idsToStrings(s.CollectedAchievements))
		add("answered_question_ids", nonNilStrings(s.AnsweredQuestionIDs))
	}
	if u.Username != nil {
		var name *string
		if n := profile.NormalizeUsername(*u.Username); n != "" {
			name = &n
		}
		add("username", name)
	}
	if v := u.Visibility; v != nil {
		add("hide_from_global", v.HideFromGlobal)
		add("block_invites", v.BlockInvites)
	}

	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "user_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(
		`INSERT INTO profiles (%s) VALUES (%s) ON CONFLICT (user_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		if IsUniqueViolation(err) {
			return profile.ErrUsernameTaken
		}
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// leaderboard.RankingSource
// ─────────────────────────────────────────────────────────────────────────────

// HiddenUserIDs returns users who opted out of the global leaderboard.
func (r *ProfileRepository) HiddenUserIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.conn.Query(ctx, `SELECT user_id FROM profiles WHERE hide_from_global`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hidden users: %w", err)
	}
	defer rows.Close()

	hidden := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hidden user: %w", err)
		}
		hidden[id] = struct{}{}
	}
	return hidden, rows.Err()
}

// QueryRanked returns profiles ordered by metric, then username (empty last,
// byte order), then user ID. limit <= 0 returns all rows.
func (r *ProfileRepository) QueryRanked(ctx context.Context, m leaderboard.Metric, limit, offset int) ([]leaderboard.Entry, error) {
	if !m.IsValid() {
		return nil, leaderboard.ErrInvalidMetric
	}

	var lim any
	if limit > 0 {
		lim = limit
	}

	// m.Column() is a fixed identifier, never user input
	query := fmt.Sprintf(`
		SELECT user_id, COALESCE(username, ''), total_xp, day_streak
		FROM profiles
		ORDER BY %s DESC,
			COALESCE(username, '') = '' ASC,
			username COLLATE "C" ASC,
			user_id COLLATE "C" ASC
		LIMIT $1 OFFSET $2
	`, m.Column())

	rows, err := r.conn.Query(ctx, query, lim, max(0, offset))
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer rows.Close()

	entries := make([]leaderboard.Entry, 0, max(limit, 0))
	for rows.Next() {
		var e leaderboard.Entry
		if err := rows.Scan(&e.UserID, &e.Username, &e.TotalXP, &e.DayStreak); err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ExpireDayStreaks zeroes streaks whose last valid day is before yesterday.
func (r *ProfileRepository) ExpireDayStreaks(ctx context.Context, today time.Time) (int64, error) {
	yesterday := today.AddDate(0, 0, -1)
	tag, err := r.conn.Exec(ctx, `
		UPDATE profiles
		SET day_streak = 0, last_valid_streak_date = NULL, updated_at = NOW()
		WHERE last_valid_streak_date < $1
	`, yesterday)
	if err != nil {
		return 0, fmt.Errorf("failed to expire day streaks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var (
		p         profile.Profile
		s         = &p.Stats
		ach       []string
		collected []string
	)

	err := row.Scan(
		&p.UserID, &p.Username,
		&s.TotalXP, &s.DayStreak, &s.QuestionsAnswered, &s.CorrectAnswers, &s.AnswerStreak,
		&s.LastQuestionDate, &s.QuestionsAnsweredToday, &s.LastValidStreakDate,
		&ach, &collected, &s.AnsweredQuestionIDs,
		&p.Visibility.HideFromGlobal, &p.Visibility.BlockInvites, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, profile.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	s.Achievements = stringsToIDs(ach)
	s.CollectedAchievements = stringsToIDs(collected)
	s.Normalize()
	return &p, nil
}

func idsToStrings(ids []progress.AchievementID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToIDs(ss []string) []progress.AchievementID {
	out := make([]progress.AchievementID, len(ss))
	for i, s := range ss {
		out[i] = progress.AchievementID(s)
	}
	return out
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
