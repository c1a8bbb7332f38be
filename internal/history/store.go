// Package history persists transcription outcomes to a local SQLite
// database.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"voxkey/internal/session"
)

const schema = `
	CREATE TABLE IF NOT EXISTS transcriptions (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		ok INTEGER NOT NULL,
		text TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		model_id TEXT NOT NULL DEFAULT '',
		audio_ms INTEGER NOT NULL DEFAULT 0,
		transcribe_ms INTEGER NOT NULL DEFAULT 0,
		created_at REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcriptions_created
		ON transcriptions(created_at);
`

// Record is one stored transcription outcome.
type Record struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	OK           bool      `json:"ok"`
	Text         string    `json:"text"`
	Error        string    `json:"error,omitempty"`
	ModelID      string    `json:"model_id,omitempty"`
	AudioMS      int64     `json:"audio_ms"`
	TranscribeMS int64     `json:"transcribe_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store writes and reads transcription history.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating the schema if needed.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one session outcome.
func (s *Store) Append(o session.Outcome) error {
	errMsg := ""
	if !o.Ok {
		errMsg = o.Reason()
	}

	_, err := s.db.Exec(`
		INSERT INTO transcriptions
			(id, source, ok, text, error, model_id, audio_ms, transcribe_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.SessionID, string(o.Source), o.Ok, o.Text, errMsg, o.ModelID,
		o.AudioDuration.Milliseconds(), o.TranscribeTime.Milliseconds(),
		unixFromTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

// Recent returns the newest records, up to limit.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, source, ok, text, error, model_id, audio_ms, transcribe_ms, created_at
		FROM transcriptions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcriptions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var createdAt float64
		if err := rows.Scan(&r.ID, &r.Source, &r.OK, &r.Text, &r.Error,
			&r.ModelID, &r.AudioMS, &r.TranscribeMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		r.CreatedAt = timeFromUnix(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
