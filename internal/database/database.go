package database

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one completed transcription in the session history.
type Entry struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	Source          string    `json:"source"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model,omitempty"`
	TimestampLabel  string    `json:"timestamp_label"`
	NotePath        string    `json:"note_path"`
	AudioPath       string    `json:"audio_path"`
	DailyNotePath   string    `json:"daily_note_path,omitempty"`
	PostProcessed   bool      `json:"post_processed"`
	AudioBytes      int       `json:"audio_bytes"`
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists session history.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	// List returns entries newest first and the total count.
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)
	HealthCheck(ctx context.Context) error
	Type() string
	Close()
}

// Open connects to the history store named by databaseURL: postgres:// and
// postgresql:// URLs use pgx, anything else is a SQLite path (optionally
// prefixed with sqlite: or given as a file: URI).
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (Store, error) {
	log = log.With().Str("component", "database").Logger()
	if IsPostgres(databaseURL) {
		return ConnectPostgres(ctx, databaseURL, log)
	}
	return OpenSQLite(ctx, strings.TrimPrefix(databaseURL, "sqlite:"), log)
}

// IsPostgres reports whether databaseURL selects the postgres backend.
func IsPostgres(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
