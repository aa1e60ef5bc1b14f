// Package session provides a SQLite-backed store for question/answer turns,
// keyed by session ID. Turns are persisted across restarts and replayed into
// the model's context window on follow-up questions. Only fully generated
// answers become turns — refusals and fallbacks are never part of a session's
// history.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/caselight/cqa-go/internal/rag"
)

// Turn is one completed question/answer exchange within a session.
type Turn struct {
	// SessionID identifies the conversation this turn belongs to.
	SessionID string

	// Index is the zero-based position of this turn within the session.
	Index int

	// Question is the user's question as asked.
	Question string

	// Answer is the generated answer, including any low-confidence note.
	Answer string

	// Citations are the answer's resolved citations.
	Citations []rag.Citation

	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time
}

// Store persists and retrieves session turns. Implementations must be safe
// for concurrent use.
type Store interface {
	// AppendTurn persists a completed turn, assigning it the next index in
	// its session.
	AppendTurn(ctx context.Context, sessionID, question, answer string, citations []rag.Citation) error

	// History returns the most recent n turns for the session, ordered
	// oldest-first so they can be replayed into the model context directly.
	// If fewer than n turns exist, all are returned.
	History(ctx context.Context, sessionID string, n int) ([]Turn, error)

	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the session history database.
// It resolves to ~/.cqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".cqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("session: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    turn_index   INTEGER NOT NULL,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    citations    TEXT    NOT NULL DEFAULT '[]',  -- JSON array
    created_at   INTEGER NOT NULL,               -- Unix timestamp (seconds)
    UNIQUE (session_id, turn_index)
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns (session_id, turn_index);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("session: migrate: %w", err)
	}
	return nil
}

// AppendTurn persists a completed turn. The next turn index is computed and
// inserted in one transaction so concurrent appenders to the same session
// cannot collide.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, question, answer string, citations []rag.Citation) error {
	if citations == nil {
		citations = []rag.Citation{}
	}
	encoded, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("session: encode citations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_index) + 1, 0) FROM turns WHERE session_id = ?`,
		sessionID).Scan(&next); err != nil {
		return fmt.Errorf("session: next index: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, turn_index, question, answer, citations, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, next, question, answer, string(encoded), time.Now().Unix()); err != nil {
		return fmt.Errorf("session: append: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit append: %w", err)
	}
	return nil
}

// History returns the most recent n turns for the session, ordered
// oldest-first. Uses a subquery to select the tail then re-order for replay.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	const q = `
SELECT session_id, turn_index, question, answer, citations, created_at FROM (
    SELECT session_id, turn_index, question, answer, citations, created_at
    FROM   turns
    WHERE  session_id = ?
    ORDER  BY turn_index DESC
    LIMIT  ?
) ORDER BY turn_index ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("session: history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var encoded string
		var ts int64
		if err := rows.Scan(&t.SessionID, &t.Index, &t.Question, &t.Answer, &encoded, &ts); err != nil {
			return nil, fmt.Errorf("session: history scan: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &t.Citations); err != nil {
			return nil, fmt.Errorf("session: decode citations: %w", err)
		}
		t.CreatedAt = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: history rows: %w", err)
	}
	return turns, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}
