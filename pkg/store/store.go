// Package store is the sqlite persistence layer for the support desk:
// sessions, tickets, bans, the audit log and usage counters. One Store
// owns the database handle; the typed accessors are split per concern.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tgdesk/tgdesk/pkg/logger"
)

// StoreError is a sentinel error produced by the persistence layer.
type StoreError string

func (e StoreError) Error() string { return string(e) }

const (
	ErrNotFound          StoreError = "record not found"
	ErrInvalidTransition StoreError = "invalid ticket transition"
)

type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (or creates) the sqlite database at path and applies the
// schema. Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if path == ":memory:" {
		// A second pooled connection would open its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init store schema: %w", err)
	}

	logger.InfoCF("store", "Store opened", map[string]interface{}{
		"path": path,
	})
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.Ping()
}

// DB exposes the raw handle for module OnInit hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		locale TEXT DEFAULT '',
		data TEXT DEFAULT '{}',
		last_seen TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		opener_id TEXT NOT NULL,
		opener_name TEXT DEFAULT '',
		subject TEXT NOT NULL,
		status TEXT DEFAULT 'open',
		agent TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		closed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
	CREATE INDEX IF NOT EXISTS idx_tickets_opener ON tickets(channel, opener_id);

	CREATE TABLE IF NOT EXISTS ticket_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (ticket_id) REFERENCES tickets(id)
	);

	CREATE INDEX IF NOT EXISTS idx_ticket_messages_ticket ON ticket_messages(ticket_id, created_at);

	CREATE TABLE IF NOT EXISTS bans (
		channel TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		reason TEXT DEFAULT '',
		issued_by TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (channel, sender_id)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		sender_id TEXT DEFAULT '',
		event TEXT NOT NULL,
		command TEXT DEFAULT '',
		detail TEXT DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_trace ON audit_log(trace_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS counter_history (
		day TEXT NOT NULL,
		name TEXT NOT NULL,
		value INTEGER DEFAULT 0,
		PRIMARY KEY (day, name)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}
