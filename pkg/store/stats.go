package store

import (
	"fmt"
	"time"
)

// IncrCounter adds one to the named counter, creating it at 1 when absent.
func (s *Store) IncrCounter(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO counters (name, value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET value = value + 1`, name)
	if err != nil {
		return fmt.Errorf("incr counter %s: %w", name, err)
	}
	return nil
}

// Counters returns every live counter.
func (s *Store) Counters() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT name, value FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("counters: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// RotateCounters moves the live counters into the per-day history bucket
// and resets them. The stats module runs this from the scheduled sweep.
func (s *Store) RotateCounters(day time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT name, value FROM counters`)
	if err != nil {
		return nil, fmt.Errorf("rotate counters: %w", err)
	}
	snapshot := map[string]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			rows.Close()
			return nil, err
		}
		snapshot[name] = value
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	bucket := day.UTC().Format("2006-01-02")
	for name, value := range snapshot {
		if _, err := s.db.Exec(
			`INSERT INTO counter_history (day, name, value) VALUES (?, ?, ?)
			 ON CONFLICT(day, name) DO UPDATE SET value = value + excluded.value`,
			bucket, name, value); err != nil {
			return nil, fmt.Errorf("write counter history: %w", err)
		}
	}
	if _, err := s.db.Exec(`DELETE FROM counters`); err != nil {
		return nil, fmt.Errorf("reset counters: %w", err)
	}
	return snapshot, nil
}

// CounterHistory returns the stored value for one counter on one day.
func (s *Store) CounterHistory(day time.Time, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT value FROM counter_history WHERE day = ? AND name = ?`,
		day.UTC().Format("2006-01-02"), name)
	var value int64
	if err := row.Scan(&value); err != nil {
		return 0, ErrNotFound
	}
	return value, nil
}
