package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/odometry/internal/odometry"
)

// Session is one continuous odometry run between resets.
type Session struct {
	ID        string          `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Config    odometry.Config `json:"config"`
}

// StartSession records a new session using cfg and returns it.
func (db *DB) StartSession(cfg odometry.Config, startedAt time.Time) (*Session, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode session config: %w", err)
	}
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: startedAt.UTC().Truncate(time.Millisecond),
		Config:    cfg,
	}
	if _, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix_ms, config_json) VALUES (?, ?, ?)`,
		s.ID, s.StartedAt.UnixMilli(), string(cfgJSON),
	); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the session end time. Ending an already ended session
// keeps the first end time.
func (db *DB) EndSession(id string, endedAt time.Time) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_unix_ms = COALESCE(ended_unix_ms, ?) WHERE session_id = ?`,
		endedAt.UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s         Session
		startedMs int64
		endedMs   sql.NullInt64
		cfgJSON   string
	)
	if err := row.Scan(&s.ID, &startedMs, &endedMs, &cfgJSON); err != nil {
		return nil, err
	}
	s.StartedAt = time.UnixMilli(startedMs).UTC()
	if endedMs.Valid {
		t := time.UnixMilli(endedMs.Int64).UTC()
		s.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(cfgJSON), &s.Config); err != nil {
		return nil, fmt.Errorf("decode config for session %s: %w", s.ID, err)
	}
	return &s, nil
}

// Session returns a single session by id.
func (db *DB) Session(id string) (*Session, error) {
	row := db.QueryRow(
		`SELECT session_id, started_unix_ms, ended_unix_ms, config_json FROM sessions WHERE session_id = ?`, id,
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// Sessions returns every session, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, started_unix_ms, ended_unix_ms, config_json FROM sessions
		 ORDER BY started_unix_ms DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
