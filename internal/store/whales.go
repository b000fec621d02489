package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Whale is a tracked wallet with its aggregate performance stats.
type Whale struct {
	WalletAddress   string
	DisplayName     string
	TotalVolume     float64
	TotalPnl        float64
	TotalRoi        float64
	WinRate         float64
	SharpeRatio     float64
	ActivePositions int
	TotalTrades     int
	FirstSeenAt     int64
	LastActivityAt  int64
	IsActive        bool
	TrackingEnabled bool
}

// WhaleStats holds the aggregate fields recomputed by the metrics pass.
type WhaleStats struct {
	TotalVolume     float64
	TotalPnl        float64
	TotalRoi        float64
	WinRate         float64
	SharpeRatio     float64
	ActivePositions int
	TotalTrades     int
}

// CreateWhale registers a new whale. Returns ErrDuplicateWhale if the
// wallet is already known.
func (s *Store) CreateWhale(w Whale) error {
	_, err := s.db.Exec(`
		INSERT INTO whales
		(wallet_address, display_name, first_seen_at, last_activity_at, is_active, tracking_enabled)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.WalletAddress, w.DisplayName, w.FirstSeenAt, w.LastActivityAt,
		boolToInt(w.IsActive), boolToInt(w.TrackingEnabled),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateWhale, w.WalletAddress)
		}
		return fmt.Errorf("create whale: %w", err)
	}
	return nil
}

// EnsureWhale registers the wallet if it is not yet known and returns the
// stored record either way.
func (s *Store) EnsureWhale(wallet string, now int64) (*Whale, error) {
	existing, err := s.GetWhale(wallet)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	w := Whale{
		WalletAddress:   wallet,
		DisplayName:     shortAddress(wallet),
		FirstSeenAt:     now,
		LastActivityAt:  now,
		IsActive:        true,
		TrackingEnabled: true,
	}
	if err := s.CreateWhale(w); err != nil && !errors.Is(err, ErrDuplicateWhale) {
		return nil, err
	}
	return s.GetWhale(wallet)
}

// GetWhale looks up a whale by wallet address.
func (s *Store) GetWhale(wallet string) (*Whale, error) {
	row := s.db.QueryRow(`
		SELECT wallet_address, display_name, total_volume, total_pnl, total_roi,
		       win_rate, sharpe_ratio, active_positions, total_trades,
		       first_seen_at, last_activity_at, is_active, tracking_enabled
		FROM whales WHERE wallet_address = ?`,
		wallet,
	)
	return scanWhale(row)
}

// ListTrackedWhales returns tracking-enabled whales ordered by total volume
// descending, bounded by limit. The deterministic ordering is what makes
// orchestrator batches reproducible.
func (s *Store) ListTrackedWhales(limit int) ([]Whale, error) {
	if limit <= 0 {
		// sqlite treats a negative limit as unbounded
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT wallet_address, display_name, total_volume, total_pnl, total_roi,
		       win_rate, sharpe_ratio, active_positions, total_trades,
		       first_seen_at, last_activity_at, is_active, tracking_enabled
		FROM whales
		WHERE tracking_enabled = 1 AND is_active = 1
		ORDER BY total_volume DESC, wallet_address ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracked whales: %w", err)
	}
	defer rows.Close()

	var whales []Whale
	for rows.Next() {
		w, err := scanWhale(rows)
		if err != nil {
			return nil, err
		}
		whales = append(whales, *w)
	}
	return whales, rows.Err()
}

// UpdateWhaleStats overwrites the whale's aggregate stats.
func (s *Store) UpdateWhaleStats(wallet string, stats WhaleStats) error {
	res, err := s.db.Exec(`
		UPDATE whales SET
			total_volume = ?, total_pnl = ?, total_roi = ?, win_rate = ?,
			sharpe_ratio = ?, active_positions = ?, total_trades = ?
		WHERE wallet_address = ?`,
		stats.TotalVolume, stats.TotalPnl, stats.TotalRoi, stats.WinRate,
		stats.SharpeRatio, stats.ActivePositions, stats.TotalTrades, wallet,
	)
	if err != nil {
		return fmt.Errorf("update whale stats: %w", err)
	}
	return requireRow(res, wallet)
}

// TouchWhaleActivity bumps the whale's last-activity timestamp.
func (s *Store) TouchWhaleActivity(wallet string, ts int64) error {
	res, err := s.db.Exec(
		`UPDATE whales SET last_activity_at = ? WHERE wallet_address = ?`,
		ts, wallet,
	)
	if err != nil {
		return fmt.Errorf("touch whale activity: %w", err)
	}
	return requireRow(res, wallet)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWhale(row rowScanner) (*Whale, error) {
	var w Whale
	var isActive, tracking int
	err := row.Scan(
		&w.WalletAddress, &w.DisplayName, &w.TotalVolume, &w.TotalPnl, &w.TotalRoi,
		&w.WinRate, &w.SharpeRatio, &w.ActivePositions, &w.TotalTrades,
		&w.FirstSeenAt, &w.LastActivityAt, &isActive, &tracking,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan whale: %w", err)
	}
	w.IsActive = isActive != 0
	w.TrackingEnabled = tracking != 0
	return &w, nil
}

func requireRow(res sql.Result, wallet string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, wallet)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// shortAddress derives a default display name from a wallet address.
func shortAddress(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:10]
}
