package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Store persists accounts, signals and studies in SQLite. Every write runs in
// its own transaction and is committed before the call returns.
type Store struct {
	db    *sqlx.DB
	clock func() time.Time
	mu    sync.Mutex
	locks sync.Map
}

type Options struct {
	Clock func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL UNIQUE COLLATE NOCASE,
	domain             TEXT,
	modality_tags_json TEXT NOT NULL DEFAULT '[]',
	fit_score          REAL NOT NULL DEFAULT 0,
	urgency_score      REAL NOT NULL DEFAULT 0,
	access_score       REAL NOT NULL DEFAULT 0,
	total_score        REAL NOT NULL DEFAULT 0,
	last_seen_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
	signal_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id   INTEGER NOT NULL REFERENCES accounts(account_id),
	signal_type  TEXT NOT NULL,
	source       TEXT NOT NULL,
	title        TEXT,
	evidence_url TEXT NOT NULL DEFAULT '',
	published_at TEXT,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   TEXT NOT NULL,
	UNIQUE(account_id, signal_type, source, evidence_url)
);

CREATE INDEX IF NOT EXISTS idx_signals_account ON signals(account_id);

CREATE TABLE IF NOT EXISTS studies (
	id                 TEXT PRIMARY KEY,
	nct_id             TEXT NOT NULL,
	synthetic          INTEGER NOT NULL DEFAULT 0,
	account_id         INTEGER NOT NULL REFERENCES accounts(account_id),
	brief_title        TEXT,
	overall_status     TEXT,
	phases_json        TEXT NOT NULL DEFAULT '[]',
	last_update_posted TEXT,
	sponsor_class      TEXT,
	study_url          TEXT,
	raw_json           TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_studies_account ON studies(account_id);
`

func Open(dbPath string, opts Options) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, clock: clock}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) now() string {
	return timeToString(s.clock())
}

// withTx runs fn inside a transaction and commits it. Writers are serialized
// so the read-then-write sequences inside fn never interleave.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// WithAccountLock serializes callers that write into the same account. Writes
// to different accounts do not contend on this lock.
func (s *Store) WithAccountLock(accountID int64, fn func() error) error {
	v, _ := s.locks.LoadOrStore(accountID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// --- persist helpers ---

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func marshalJSON(v any, empty string) string {
	if v == nil {
		return empty
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
