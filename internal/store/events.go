package store

import (
	"fmt"
)

// Event is a semantic classification of notable trading behavior.
// Events are append-only.
type Event struct {
	ID           int64
	Wallet       string
	MarketID     string
	OutcomeIndex int
	Type         string
	Severity     string
	Payload      string // JSON-encoded structured payload
	DetectedAt   int64
}

// InsertEvent persists a detected event.
func (s *Store) InsertEvent(e Event) error {
	_, err := s.db.Exec(`
		INSERT INTO whale_events
		(wallet_address, market_id, outcome_index, event_type, severity, payload, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Wallet, e.MarketID, e.OutcomeIndex, e.Type, e.Severity, e.Payload, e.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recently detected events, newest first.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	rows, err := s.db.Query(`
		SELECT id, wallet_address, market_id, outcome_index, event_type, severity, payload, detected_at
		FROM whale_events ORDER BY detected_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		err := rows.Scan(
			&e.ID, &e.Wallet, &e.MarketID, &e.OutcomeIndex,
			&e.Type, &e.Severity, &e.Payload, &e.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
