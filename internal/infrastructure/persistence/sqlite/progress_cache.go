// Package sqlite implements the on-device progress cache on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/studyquest/studyquest-core/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. The pool holds a single connection since SQLite has one writer.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS progress_cache (
			user_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressCache implements progress.LocalCache with one JSON row per user.
type ProgressCache struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewProgressCache creates a cache on an opened database.
func NewProgressCache(db *sqlx.DB) *ProgressCache {
	return &ProgressCache{db: db, now: time.Now}
}

type progressRow struct {
	UserID    string `db:"user_id"`
	Data      string `db:"data"`
	UpdatedAt int64  `db:"updated_at_unix"`
}

func (c *ProgressCache) Get(ctx context.Context, userID string) (*progress.UserProgress, error) {
	var row progressRow
	err := c.db.GetContext(ctx, &row,
		`SELECT user_id, data, updated_at_unix FROM progress_cache WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: read progress: %w", err)
	}

	var p progress.UserProgress
	if err := json.Unmarshal([]byte(row.Data), &p); err != nil {
		return nil, fmt.Errorf("sqlite: decode progress: %w", err)
	}
	p.Normalize()
	return &p, nil
}

func (c *ProgressCache) Set(ctx context.Context, userID string, p *progress.UserProgress) error {
	if p == nil {
		return c.Clear(ctx, userID)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("sqlite: encode progress: %w", err)
	}

	_, err = c.db.NamedExecContext(ctx, `
		INSERT INTO progress_cache (user_id, data, updated_at_unix)
		VALUES (:user_id, :data, :updated_at_unix)
		ON CONFLICT (user_id) DO UPDATE SET
			data = excluded.data,
			updated_at_unix = excluded.updated_at_unix
	`, progressRow{UserID: userID, Data: string(data), UpdatedAt: c.now().Unix()})
	if err != nil {
		return fmt.Errorf("sqlite: write progress: %w", err)
	}
	return nil
}

func (c *ProgressCache) Clear(ctx context.Context, userID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM progress_cache WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: clear progress: %w", err)
	}
	return nil
}
