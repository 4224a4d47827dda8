// store.go implements the SQLite index over sessions, used for listing,
// status and resume lookup. The JSON checkpoint stays authoritative; the
// index only locates it.
package session

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides SQLite-backed discovery of sessions.
type Store struct {
	db *sql.DB
}

// Entry is one indexed session row.
type Entry struct {
	ID        string
	IdeaID    string
	Phase     Phase
	Progress  int
	Degraded  bool
	Dir       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpenStore opens the SQLite database at dbPath and creates tables if
// they don't exist.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		idea_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		dir TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Insert records a new session and the directory holding its checkpoint.
func (s *Store) Insert(sess *Session, dir string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, idea_id, phase, progress, degraded, dir, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.IdeaID, string(sess.Phase), sess.Progress, boolInt(sess.DegradedMode), dir, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Update refreshes the indexed phase, progress and degraded flag.
func (s *Store) Update(sess *Session) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET phase = ?, progress = ?, degraded = ?, updated_at = ?
		 WHERE id = ?`,
		string(sess.Phase), sess.Progress, boolInt(sess.DegradedMode), time.Now(), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Get retrieves one session entry by ID. Returns nil, nil when the ID is
// unknown.
func (s *Store) Get(id string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT id, idea_id, phase, progress, degraded, dir, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	return scanEntry(row)
}

// Latest returns the most recently updated session, or nil, nil when the
// index is empty.
func (s *Store) Latest() (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT id, idea_id, phase, progress, degraded, dir, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT 1`,
	)
	return scanEntry(row)
}

// LatestResumable returns the most recently updated blocked or
// interrupted session, or nil, nil when none exists.
func (s *Store) LatestResumable() (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT id, idea_id, phase, progress, degraded, dir, created_at, updated_at
		 FROM sessions
		 WHERE phase IN (?, ?)
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		string(PhaseBlocked), string(PhaseInterrupted),
	)
	return scanEntry(row)
}

// List returns the most recent sessions, newest first. A limit of zero or
// less returns every session.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, idea_id, phase, progress, degraded, dir, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var phase string
		var degraded int
		if err := rows.Scan(&e.ID, &e.IdeaID, &phase, &e.Progress, &degraded, &e.Dir, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.Phase = Phase(phase)
		e.Degraded = degraded != 0
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	var phase string
	var degraded int
	err := row.Scan(&e.ID, &e.IdeaID, &phase, &e.Progress, &degraded, &e.Dir, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	e.Phase = Phase(phase)
	e.Degraded = degraded != 0
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
