package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session is the per-conversation state attached to each dispatch. Data
// holds free-form module state, persisted as JSON.
type Session struct {
	Key      string            `json:"key"`
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	SenderID string            `json:"sender_id"`
	Locale   string            `json:"locale,omitempty"`
	Data     map[string]string `json:"data"`
	LastSeen time.Time         `json:"last_seen"`
}

// GetSession loads a session by key. ErrNotFound when the key is unknown.
func (s *Store) GetSession(key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT session_key, channel, chat_id, sender_id, locale, data, last_seen
		 FROM sessions WHERE session_key = ?`, key)

	var sess Session
	var data, lastSeen string
	err := row.Scan(&sess.Key, &sess.Channel, &sess.ChatID, &sess.SenderID, &sess.Locale, &data, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &sess.Data); err != nil {
		sess.Data = map[string]string{}
	}
	sess.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	return &sess, nil
}

// PutSession inserts or replaces a session and stamps LastSeen.
func (s *Store) PutSession(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Data == nil {
		sess.Data = map[string]string{}
	}
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	sess.LastSeen = time.Now().UTC()

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO sessions (session_key, channel, chat_id, sender_id, locale, data, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.Key, sess.Channel, sess.ChatID, sess.SenderID, sess.Locale,
		string(data), sess.LastSeen.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// SweepSessions deletes sessions idle for longer than maxIdle and returns
// how many were removed. The scheduler calls this from the daily job.
func (s *Store) SweepSessions(maxIdle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxIdle).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM sessions WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
