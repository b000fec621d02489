package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Position is an open exposure to one outcome of one market for one wallet.
// At most one open position exists per (wallet, market, outcome) key.
type Position struct {
	ID            int64
	Wallet        string
	MarketID      string
	OutcomeIndex  int
	Size          float64
	AvgEntryPrice float64
	TotalInvested float64
	CurrentPrice  float64
	CurrentValue  float64
	UnrealizedPnl float64
	UnrealizedRoi float64
	OpenedAt      int64
	UpdatedAt     int64
}

// ClosedPosition is the archival record created when an open position closes.
type ClosedPosition struct {
	ID            int64
	Wallet        string
	MarketID      string
	OutcomeIndex  int
	Size          float64
	AvgEntryPrice float64
	TotalInvested float64
	AvgExitPrice  float64
	TotalReturned float64
	RealizedPnl   float64
	RealizedRoi   float64
	OpenedAt      int64
	ClosedAt      int64
	HoldDuration  int64
}

// GetPosition returns the open position for a key, or ErrNotFound.
func (s *Store) GetPosition(wallet, marketID string, outcomeIndex int) (*Position, error) {
	row := s.db.QueryRow(`
		SELECT id, wallet_address, market_id, outcome_index, size, avg_entry_price,
		       total_invested, current_price, current_value, unrealized_pnl,
		       unrealized_roi, opened_at, updated_at
		FROM positions
		WHERE wallet_address = ? AND market_id = ? AND outcome_index = ?`,
		wallet, marketID, outcomeIndex,
	)
	return scanPosition(row)
}

// InsertPosition creates a new open position. The UNIQUE key on
// (wallet, market, outcome) enforces the one-open-position invariant.
func (s *Store) InsertPosition(p Position) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO positions
		(wallet_address, market_id, outcome_index, size, avg_entry_price, total_invested,
		 current_price, current_value, unrealized_pnl, unrealized_roi, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Wallet, p.MarketID, p.OutcomeIndex, p.Size, p.AvgEntryPrice, p.TotalInvested,
		p.CurrentPrice, p.CurrentValue, p.UnrealizedPnl, p.UnrealizedRoi, p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert position: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePosition overwrites the mutable fields of an open position.
func (s *Store) UpdatePosition(p Position) error {
	res, err := s.db.Exec(`
		UPDATE positions SET
			size = ?, avg_entry_price = ?, total_invested = ?, current_price = ?,
			current_value = ?, unrealized_pnl = ?, unrealized_roi = ?, updated_at = ?
		WHERE id = ?`,
		p.Size, p.AvgEntryPrice, p.TotalInvested, p.CurrentPrice,
		p.CurrentValue, p.UnrealizedPnl, p.UnrealizedRoi, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: position %d", ErrNotFound, p.ID)
	}
	return nil
}

// ClosePosition archives an open position and removes the open record.
// Both writes happen in one transaction so a closed position never
// coexists with its open record.
func (s *Store) ClosePosition(positionID int64, closed ClosedPosition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("close position: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO closed_positions
		(wallet_address, market_id, outcome_index, size, avg_entry_price, total_invested,
		 avg_exit_price, total_returned, realized_pnl, realized_roi, opened_at, closed_at, hold_duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		closed.Wallet, closed.MarketID, closed.OutcomeIndex, closed.Size,
		closed.AvgEntryPrice, closed.TotalInvested, closed.AvgExitPrice,
		closed.TotalReturned, closed.RealizedPnl, closed.RealizedRoi,
		closed.OpenedAt, closed.ClosedAt, closed.HoldDuration,
	)
	if err != nil {
		return fmt.Errorf("close position: archive: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM positions WHERE id = ?`, positionID)
	if err != nil {
		return fmt.Errorf("close position: delete open: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: position %d", ErrNotFound, positionID)
	}

	return tx.Commit()
}

// ListOpenPositions returns all open positions for a wallet.
func (s *Store) ListOpenPositions(wallet string) ([]Position, error) {
	rows, err := s.db.Query(`
		SELECT id, wallet_address, market_id, outcome_index, size, avg_entry_price,
		       total_invested, current_price, current_value, unrealized_pnl,
		       unrealized_roi, opened_at, updated_at
		FROM positions WHERE wallet_address = ? ORDER BY opened_at ASC`,
		wallet,
	)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// ListClosedPositions returns all closed positions for a wallet,
// most recently closed first.
func (s *Store) ListClosedPositions(wallet string) ([]ClosedPosition, error) {
	return s.queryClosed(`
		SELECT id, wallet_address, market_id, outcome_index, size, avg_entry_price,
		       total_invested, avg_exit_price, total_returned, realized_pnl,
		       realized_roi, opened_at, closed_at, hold_duration
		FROM closed_positions WHERE wallet_address = ? ORDER BY closed_at DESC`,
		wallet,
	)
}

// ClosedPositionsInWindow returns positions closed inside [from, to).
func (s *Store) ClosedPositionsInWindow(wallet string, from, to int64) ([]ClosedPosition, error) {
	return s.queryClosed(`
		SELECT id, wallet_address, market_id, outcome_index, size, avg_entry_price,
		       total_invested, avg_exit_price, total_returned, realized_pnl,
		       realized_roi, opened_at, closed_at, hold_duration
		FROM closed_positions
		WHERE wallet_address = ? AND closed_at >= ? AND closed_at < ?
		ORDER BY closed_at ASC`,
		wallet, from, to,
	)
}

func (s *Store) queryClosed(query string, args ...any) ([]ClosedPosition, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	var closed []ClosedPosition
	for rows.Next() {
		var c ClosedPosition
		err := rows.Scan(
			&c.ID, &c.Wallet, &c.MarketID, &c.OutcomeIndex, &c.Size,
			&c.AvgEntryPrice, &c.TotalInvested, &c.AvgExitPrice, &c.TotalReturned,
			&c.RealizedPnl, &c.RealizedRoi, &c.OpenedAt, &c.ClosedAt, &c.HoldDuration,
		)
		if err != nil {
			return nil, fmt.Errorf("scan closed position: %w", err)
		}
		closed = append(closed, c)
	}
	return closed, rows.Err()
}

func scanPosition(row rowScanner) (*Position, error) {
	var p Position
	err := row.Scan(
		&p.ID, &p.Wallet, &p.MarketID, &p.OutcomeIndex, &p.Size, &p.AvgEntryPrice,
		&p.TotalInvested, &p.CurrentPrice, &p.CurrentValue, &p.UnrealizedPnl,
		&p.UnrealizedRoi, &p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan position: %w", err)
	}
	return &p, nil
}
