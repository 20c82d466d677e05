package store

import (
	"fmt"
	"time"
)

// AuditEntry is one dispatch recorded by the audit middleware. TraceID ties
// together every row produced while handling the same update.
type AuditEntry struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id"`
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender_id,omitempty"`
	Event     string    `json:"event"`
	Command   string    `json:"command,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit appends one entry to the audit log.
func (s *Store) Audit(e *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO audit_log (trace_id, channel, sender_id, event, command, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TraceID, e.Channel, e.SenderID, e.Event, e.Command, e.Detail,
		e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// RecentAudit returns the newest entries, most recent first.
func (s *Store) RecentAudit(limit int) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, trace_id, channel, sender_id, event, command, detail, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var created string
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Channel, &e.SenderID, &e.Event, &e.Command, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SweepAudit deletes audit rows older than maxAge and returns the count.
func (s *Store) SweepAudit(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep audit: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
