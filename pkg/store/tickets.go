package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketClaimed TicketStatus = "claimed"
	TicketClosed  TicketStatus = "closed"
)

// ValidTransitions defines the allowed status changes. Closed is terminal.
var ValidTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:    {TicketClaimed, TicketClosed},
	TicketClaimed: {TicketOpen, TicketClosed},
	TicketClosed:  {},
}

func canTransition(from, to TicketStatus) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Ticket is one support request opened from a chat.
type Ticket struct {
	ID         string       `json:"id"`
	Channel    string       `json:"channel"`
	ChatID     string       `json:"chat_id"`
	OpenerID   string       `json:"opener_id"`
	OpenerName string       `json:"opener_name,omitempty"`
	Subject    string       `json:"subject"`
	Status     TicketStatus `json:"status"`
	Agent      string       `json:"agent,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
}

// TicketMessage is one follow-up appended to an open ticket.
type TicketMessage struct {
	ID        int64     `json:"id"`
	TicketID  string    `json:"ticket_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTicket stores a new open ticket and returns it with an assigned ID.
func (s *Store) CreateTicket(t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TicketOpen
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO tickets (id, channel, chat_id, opener_id, opener_name, subject, status, agent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Channel, t.ChatID, t.OpenerID, t.OpenerName, t.Subject, string(t.Status), t.Agent,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

// GetTicket loads one ticket by ID.
func (s *Store) GetTicket(id string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, channel, chat_id, opener_id, opener_name, subject, status, agent, created_at, updated_at, closed_at
		 FROM tickets WHERE id = ?`, id)
	return scanTicket(row)
}

// OpenTicketFor returns the caller's most recent non-closed ticket, or
// ErrNotFound when every ticket of theirs is closed.
func (s *Store) OpenTicketFor(channel, openerID string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, channel, chat_id, opener_id, opener_name, subject, status, agent, created_at, updated_at, closed_at
		 FROM tickets WHERE channel = ? AND opener_id = ? AND status != 'closed'
		 ORDER BY created_at DESC LIMIT 1`, channel, openerID)
	return scanTicket(row)
}

// ListTickets returns tickets with the given status, newest first. An empty
// status lists everything.
func (s *Store) ListTickets(status TicketStatus, limit int) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, channel, chat_id, opener_id, opener_name, subject, status, agent, created_at, updated_at, closed_at
		 FROM tickets`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicketRows(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// TransitionTicket moves a ticket to a new status, enforcing the state
// machine. Agent is recorded on claim and kept on close.
func (s *Store) TransitionTicket(id string, to TicketStatus, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT status FROM tickets WHERE id = ?`, id)
	var current string
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load ticket status: %w", err)
	}
	if !canTransition(TicketStatus(current), to) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var err error
	switch to {
	case TicketClosed:
		_, err = s.db.Exec(
			`UPDATE tickets SET status = ?, updated_at = ?, closed_at = ? WHERE id = ?`,
			string(to), now, now, id)
	case TicketClaimed:
		_, err = s.db.Exec(
			`UPDATE tickets SET status = ?, agent = ?, updated_at = ? WHERE id = ?`,
			string(to), agent, now, id)
	default:
		_, err = s.db.Exec(
			`UPDATE tickets SET status = ?, agent = '', updated_at = ? WHERE id = ?`,
			string(to), now, id)
	}
	if err != nil {
		return fmt.Errorf("transition ticket: %w", err)
	}
	return nil
}

// AppendTicketMessage records a follow-up on a ticket.
func (s *Store) AppendTicketMessage(ticketID, senderID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO ticket_messages (ticket_id, sender_id, body, created_at) VALUES (?, ?, ?, ?)`,
		ticketID, senderID, body, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append ticket message: %w", err)
	}
	return nil
}

// TicketMessages returns a ticket's follow-ups in chronological order.
func (s *Store) TicketMessages(ticketID string) ([]*TicketMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, ticket_id, sender_id, body, created_at
		 FROM ticket_messages WHERE ticket_id = ? ORDER BY id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket messages: %w", err)
	}
	defer rows.Close()

	var msgs []*TicketMessage
	for rows.Next() {
		var m TicketMessage
		var created string
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.Body, &created); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, created)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// TicketStats counts tickets per status for the ops endpoint.
func (s *Store) TicketStats() (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ticket stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row *sql.Row) (*Ticket, error) {
	t, err := scanTicketFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func scanTicketRows(rows *sql.Rows) (*Ticket, error) {
	return scanTicketFrom(rows)
}

func scanTicketFrom(row rowScanner) (*Ticket, error) {
	var t Ticket
	var status, created, updated string
	var closed sql.NullString
	err := row.Scan(&t.ID, &t.Channel, &t.ChatID, &t.OpenerID, &t.OpenerName,
		&t.Subject, &status, &t.Agent, &created, &updated, &closed)
	if err != nil {
		return nil, err
	}
	t.Status = TicketStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	if closed.Valid && closed.String != "" {
		ts, err := time.Parse(time.RFC3339, closed.String)
		if err == nil {
			t.ClosedAt = &ts
		}
	}
	return &t, nil
}
