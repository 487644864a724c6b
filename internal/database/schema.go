package database

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id               BIGSERIAL PRIMARY KEY,
	session_id       TEXT NOT NULL,
	source           TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL DEFAULT '',
	timestamp_label  TEXT NOT NULL,
	note_path        TEXT NOT NULL,
	audio_path       TEXT NOT NULL,
	daily_note_path  TEXT NOT NULL DEFAULT '',
	post_processed   BOOLEAN NOT NULL DEFAULT FALSE,
	audio_bytes      INTEGER NOT NULL DEFAULT 0,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS transcriptions_ended_at_idx ON transcriptions (ended_at DESC);
`

// SQLite stores times as unix milliseconds.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcriptions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL,
	source           TEXT NOT NULL,
	provider         TEXT NOT NULL,
	model            TEXT NOT NULL DEFAULT '',
	timestamp_label  TEXT NOT NULL,
	note_path        TEXT NOT NULL,
	audio_path       TEXT NOT NULL,
	daily_note_path  TEXT NOT NULL DEFAULT '',
	post_processed   INTEGER NOT NULL DEFAULT 0,
	audio_bytes      INTEGER NOT NULL DEFAULT 0,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	started_at       INTEGER NOT NULL,
	ended_at         INTEGER NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS transcriptions_ended_at_idx ON transcriptions (ended_at DESC);
`
