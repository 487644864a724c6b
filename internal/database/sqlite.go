package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps history in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path. path may be a
// plain file path, ":memory:" or a file: URI.
func OpenSQLite(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty path")
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; also keeps :memory: on a single connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().Str("path", path).Msg("database opened")
	return &SQLiteStore{db: db, path: path, log: log}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transcriptions (
			session_id, source, provider, model, timestamp_label, note_path, audio_path,
			daily_note_path, post_processed, audio_bytes, duration_seconds, started_at, ended_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Source, e.Provider, e.Model, e.TimestampLabel, e.NotePath, e.AudioPath,
		e.DailyNotePath, e.PostProcessed, e.AudioBytes, e.DurationSeconds,
		e.StartedAt.UnixMilli(), e.EndedAt.UnixMilli(), e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	limit, offset = clampPage(limit, offset)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM transcriptions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transcriptions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, source, provider, model, timestamp_label, note_path, audio_path,
			daily_note_path, post_processed, audio_bytes, duration_seconds, started_at, ended_at, created_at
		FROM transcriptions
		ORDER BY ended_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query transcriptions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var started, ended, created int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Source, &e.Provider, &e.Model, &e.TimestampLabel,
			&e.NotePath, &e.AudioPath, &e.DailyNotePath, &e.PostProcessed, &e.AudioBytes,
			&e.DurationSeconds, &started, &ended, &created); err != nil {
			return nil, 0, fmt.Errorf("scan transcription: %w", err)
		}
		e.StartedAt = time.UnixMilli(started)
		e.EndedAt = time.UnixMilli(ended)
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Type() string { return "sqlite" }

func (s *SQLiteStore) Close() {
	s.log.Info().Msg("closing database")
	s.db.Close()
}
