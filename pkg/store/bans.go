package store

import (
	"fmt"
	"time"
)

// Ban blocks a sender on one channel. The ban filter middleware consults
// this table before anything else runs.
type Ban struct {
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender_id"`
	Reason    string    `json:"reason,omitempty"`
	IssuedBy  string    `json:"issued_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddBan inserts or refreshes a ban.
func (s *Store) AddBan(b *Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO bans (channel, sender_id, reason, issued_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.Channel, b.SenderID, b.Reason, b.IssuedBy, b.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add ban: %w", err)
	}
	return nil
}

// RemoveBan lifts a ban and reports whether one existed.
func (s *Store) RemoveBan(channel, senderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM bans WHERE channel = ? AND sender_id = ?`, channel, senderID)
	if err != nil {
		return false, fmt.Errorf("remove ban: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// IsBanned reports whether the sender is banned on the channel.
func (s *Store) IsBanned(channel, senderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT COUNT(*) FROM bans WHERE channel = ? AND sender_id = ?`, channel, senderID)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return count > 0, nil
}

// ListBans returns every active ban, newest first.
func (s *Store) ListBans() ([]*Ban, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT channel, sender_id, reason, issued_by, created_at FROM bans ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer rows.Close()

	var bans []*Ban
	for rows.Next() {
		var b Ban
		var created string
		if err := rows.Scan(&b.Channel, &b.SenderID, &b.Reason, &b.IssuedBy, &created); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, created)
		bans = append(bans, &b)
	}
	return bans, rows.Err()
}
