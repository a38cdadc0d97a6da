package draft

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// SQLiteStore implements Store using SQLite. The draft body is kept as JSON;
// the columns used by filters are duplicated next to it.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("draft store: open: %w", err)
	}
	// One writer; Update relies on serialized transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("draft store: wal: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS drafts (
			key        TEXT PRIMARY KEY,
			status     TEXT NOT NULL DEFAULT 'pending',
			mode       TEXT NOT NULL DEFAULT 'review',
			user_id    TEXT NOT NULL DEFAULT '',
			body       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_drafts_status ON drafts(status);
		CREATE INDEX IF NOT EXISTS idx_drafts_updated_at ON drafts(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("draft store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(d *protocol.Draft) error {
	if d.Key == "" {
		return fmt.Errorf("draft store: put: empty key")
	}
	stamp(d, s.now())
	if err := upsert(s.db, d); err != nil {
		return fmt.Errorf("draft store: put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(key string) (*protocol.Draft, error) {
	row := s.db.QueryRow(`SELECT body FROM drafts WHERE key = ?`, key)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("draft store: get: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) Update(key string, fn func(d *protocol.Draft) error) (*protocol.Draft, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("draft store: begin: %w", err)
	}
	defer tx.Rollback()

	d, err := scanDraft(tx.QueryRow(`SELECT body FROM drafts WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("draft store: update: %w", err)
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.Key = key
	stamp(d, s.now())
	if err := upsert(tx, d); err != nil {
		return nil, fmt.Errorf("draft store: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("draft store: commit: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("draft store: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteIf(key string, cond func(d *protocol.Draft) bool) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("draft store: begin: %w", err)
	}
	defer tx.Rollback()

	d, err := scanDraft(tx.QueryRow(`SELECT body FROM drafts WHERE key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("draft store: delete: %w", err)
	}
	if !cond(d) {
		return false, nil
	}
	if _, err := tx.Exec(`DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return false, fmt.Errorf("draft store: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("draft store: commit: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) List(filter Filter) ([]*protocol.Draft, error) {
	query := "SELECT body FROM drafts WHERE 1=1"
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Mode != "" {
		query += " AND mode = ?"
		args = append(args, string(filter.Mode))
	}
	if !filter.UpdatedBefore.IsZero() {
		query += " AND updated_at < ?"
		args = append(args, filter.UpdatedBefore.UnixNano())
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("draft store: list: %w", err)
	}
	defer rows.Close()

	var drafts []*protocol.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("draft store: list scan: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsert(db execer, d *protocol.Draft) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO drafts (key, status, mode, user_id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status=excluded.status, mode=excluded.mode, user_id=excluded.user_id,
			body=excluded.body, created_at=excluded.created_at, updated_at=excluded.updated_at
	`, d.Key, string(d.Status), string(d.Mode), d.UserID, string(body),
		d.CreatedAt.UnixNano(), d.UpdatedAt.UnixNano())
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDraft(s scannable) (*protocol.Draft, error) {
	var body string
	if err := s.Scan(&body); err != nil {
		return nil, err
	}
	var d protocol.Draft
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &d, nil
}
