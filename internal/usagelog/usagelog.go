// Package usagelog persists one row per LLM call to SQLite. Writes are best
// effort: the transport logs failures and moves on, so a broken disk never
// fails a request.
package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/datasmith-ai/datasmith/internal/llm"
)

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (or opens) the usage database at path. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening usage database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating usage schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS llm_usage (
		id                TEXT PRIMARY KEY,
		request_id        TEXT,
		session_id        TEXT,
		operation         TEXT NOT NULL,
		model             TEXT NOT NULL,
		prompt_tokens     INTEGER DEFAULT 0,
		completion_tokens INTEGER DEFAULT 0,
		total_tokens      INTEGER DEFAULT 0,
		latency_ms        INTEGER DEFAULT 0,
		status            TEXT NOT NULL,
		error_message     TEXT,
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_llm_usage_session ON llm_usage(session_id);
	CREATE INDEX IF NOT EXISTS idx_llm_usage_created ON llm_usage(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordUsage implements llm.UsageRecorder.
func (s *Store) RecordUsage(ctx context.Context, rec llm.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_usage (id, request_id, session_id, operation, model,
			prompt_tokens, completion_tokens, total_tokens, latency_ms,
			status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), rec.RequestID, rec.SessionID, rec.Operation, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs,
		rec.Status, rec.ErrorMessage, time.Now().UTC())
	return err
}

// Entry is one stored usage row.
type Entry struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	SessionID        string    `json:"session_id"`
	Operation        string    `json:"operation"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	SessionID string
	Operation string
	Since     time.Time
	Limit     int
}

const defaultListLimit = 100

// List returns usage rows matching the filter, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var conds []string
	var args []any
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Operation != "" {
		conds = append(conds, "operation = ?")
		args = append(args, f.Operation)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}

	query := `SELECT id, COALESCE(request_id, ''), COALESCE(session_id, ''),
		operation, model, prompt_tokens, completion_tokens, total_tokens,
		latency_ms, status, COALESCE(error_message, ''), created_at
		FROM llm_usage`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.SessionID, &e.Operation,
			&e.Model, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
			&e.LatencyMs, &e.Status, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
