package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore keeps history in PostgreSQL.
type PostgresStore struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func ConnectPostgres(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 4
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connected")

	return &PostgresStore{Pool: pool, log: log}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	return s.Pool.QueryRow(ctx, `
		INSERT INTO transcriptions (
			session_id, source, provider, model, timestamp_label, note_path, audio_path,
			daily_note_path, post_processed, audio_bytes, duration_seconds, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at`,
		e.SessionID, e.Source, e.Provider, e.Model, e.TimestampLabel, e.NotePath, e.AudioPath,
		e.DailyNotePath, e.PostProcessed, e.AudioBytes, e.DurationSeconds, e.StartedAt, e.EndedAt,
	).Scan(&e.ID, &e.CreatedAt)
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	limit, offset = clampPage(limit, offset)

	var total int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM transcriptions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT id, session_id, source, provider, model, timestamp_label, note_path, audio_path,
			daily_note_path, post_processed, audio_bytes, duration_seconds, started_at, ended_at, created_at
		FROM transcriptions
		ORDER BY ended_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Source, &e.Provider, &e.Model, &e.TimestampLabel,
			&e.NotePath, &e.AudioPath, &e.DailyNotePath, &e.PostProcessed, &e.AudioBytes,
			&e.DurationSeconds, &e.StartedAt, &e.EndedAt, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

func (s *PostgresStore) Type() string { return "postgres" }

func (s *PostgresStore) Close() {
	s.log.Info().Msg("closing database pool")
	s.Pool.Close()
}
