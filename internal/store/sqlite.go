// Package store persists synthesized narration in SQLite so a reopened
// project does not synthesize everything again.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ivlev/scene2video/internal/narration"
)

// SQLiteStore implements narration.Store
type SQLiteStore struct {
	db *sql.DB
}

var _ narration.Store = (*SQLiteStore)(nil)

// Open opens (or creates) the cache database at path
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS narration_cache (
		scene_id INTEGER NOT NULL,
		split_index INTEGER NOT NULL DEFAULT 0,
		voice TEXT NOT NULL,
		markup TEXT NOT NULL,
		audio BLOB,
		duration REAL NOT NULL,
		source_markup TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (scene_id, split_index, voice, markup)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadAll returns every persisted entry
func (s *SQLiteStore) LoadAll(ctx context.Context) (map[narration.Key]narration.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT scene_id, split_index, voice, markup, audio, duration, source_markup FROM narration_cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[narration.Key]narration.Entry)
	for rows.Next() {
		var k narration.Key
		var e narration.Entry
		if err := rows.Scan(&k.SceneID, &k.SplitIndex, &k.Voice, &k.Markup, &e.Audio, &e.DurationSeconds, &e.SourceMarkup); err != nil {
			return nil, err
		}
		result[k] = e
	}
	return result, rows.Err()
}

// Save upserts an entry
func (s *SQLiteStore) Save(ctx context.Context, key narration.Key, entry narration.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO narration_cache (scene_id, split_index, voice, markup, audio, duration, source_markup, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scene_id, split_index, voice, markup) DO UPDATE SET
			audio = excluded.audio,
			duration = excluded.duration,
			source_markup = excluded.source_markup,
			updated_at = CURRENT_TIMESTAMP`,
		key.SceneID, key.SplitIndex, key.Voice, key.Markup, entry.Audio, entry.DurationSeconds, entry.SourceMarkup,
	)
	return err
}

// Delete removes the entries of a scene, or of one sub-scene when splitIndex is set
func (s *SQLiteStore) Delete(ctx context.Context, sceneID int, splitIndex *int) error {
	if splitIndex == nil {
		_, err := s.db.ExecContext(ctx, "DELETE FROM narration_cache WHERE scene_id = ?", sceneID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM narration_cache WHERE scene_id = ? AND split_index = ?", sceneID, *splitIndex)
	return err
}

// Count returns the number of stored entries
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM narration_cache").Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
