package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Rollup bucket types.
const (
	BucketHourly  = "hourly"
	BucketDaily   = "daily"
	BucketWeekly  = "weekly"
	BucketMonthly = "monthly"
)

// Rollup is a periodic aggregate snapshot for one wallet and one bucket.
type Rollup struct {
	ID          int64
	Wallet      string
	BucketType  string
	BucketStart int64
	TradesCount int
	Volume      float64
	Pnl         float64
	Roi         float64
	WinRate     float64
	SharpeRatio float64
	CreatedAt   int64
}

// UpsertRollup inserts or overwrites the rollup row for
// (wallet, bucket type, bucket start). Recomputation overwrites,
// never accumulates.
func (s *Store) UpsertRollup(r Rollup) error {
	_, err := s.db.Exec(`
		INSERT INTO rollups
		(wallet_address, bucket_type, bucket_start, trades_count, volume, pnl, roi, win_rate, sharpe_ratio, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet_address, bucket_type, bucket_start) DO UPDATE SET
			trades_count = excluded.trades_count,
			volume = excluded.volume,
			pnl = excluded.pnl,
			roi = excluded.roi,
			win_rate = excluded.win_rate,
			sharpe_ratio = excluded.sharpe_ratio`,
		r.Wallet, r.BucketType, r.BucketStart, r.TradesCount, r.Volume,
		r.Pnl, r.Roi, r.WinRate, r.SharpeRatio, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// GetRollup fetches one rollup row, or ErrNotFound.
func (s *Store) GetRollup(wallet, bucketType string, bucketStart int64) (*Rollup, error) {
	var r Rollup
	err := s.db.QueryRow(`
		SELECT id, wallet_address, bucket_type, bucket_start, trades_count,
		       volume, pnl, roi, win_rate, sharpe_ratio, created_at
		FROM rollups
		WHERE wallet_address = ? AND bucket_type = ? AND bucket_start = ?`,
		wallet, bucketType, bucketStart,
	).Scan(
		&r.ID, &r.Wallet, &r.BucketType, &r.BucketStart, &r.TradesCount,
		&r.Volume, &r.Pnl, &r.Roi, &r.WinRate, &r.SharpeRatio, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get rollup: %w", err)
	}
	return &r, nil
}

// CountRollups returns the number of rollup rows for a wallet and bucket type.
func (s *Store) CountRollups(wallet, bucketType string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM rollups WHERE wallet_address = ? AND bucket_type = ?`,
		wallet, bucketType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rollups: %w", err)
	}
	return n, nil
}

// DeleteRollupsBefore removes rollups with a bucket start older than cutoff.
// Returns the number of rows removed.
func (s *Store) DeleteRollupsBefore(cutoff int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM rollups WHERE bucket_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old rollups: %w", err)
	}
	return res.RowsAffected()
}
