package store

import (
	"fmt"
)

// Trade is an immutable fill record. ID is derived from the source
// transaction identity and is the dedup key.
type Trade struct {
	ID           string
	Wallet       string
	MarketID     string
	OutcomeIndex int
	Side         string
	Size         float64
	Price        float64
	Value        float64
	Fee          float64
	TxHash       string
	BlockNumber  int64
	TradedAt     int64
}

// TradeExists reports whether a trade with the given id was already ingested.
func (s *Store) TradeExists(id string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM trades WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("trade exists: %w", err)
	}
	return n > 0, nil
}

// InsertTrade persists a fill record. Trades are append-only; a conflicting
// id is an ingestion bug, not a normal path (dedup happens before insert).
func (s *Store) InsertTrade(t Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades
		(id, wallet_address, market_id, outcome_index, side, size, price, value, fee, tx_hash, block_number, traded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Wallet, t.MarketID, t.OutcomeIndex, t.Side,
		t.Size, t.Price, t.Value, t.Fee, t.TxHash, t.BlockNumber, t.TradedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// CountTradesForKey returns how many trades exist for a
// (wallet, market, outcome) key. Used by NEW_POSITION detection.
func (s *Store) CountTradesForKey(wallet, marketID string, outcomeIndex int) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM trades
		WHERE wallet_address = ? AND market_id = ? AND outcome_index = ?`,
		wallet, marketID, outcomeIndex,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades for key: %w", err)
	}
	return n, nil
}

// TradeWindowSummary aggregates trades for one wallet inside [from, to).
type TradeWindowSummary struct {
	Count  int
	Volume float64
}

// SummarizeTrades aggregates a wallet's trades within a time window.
func (s *Store) SummarizeTrades(wallet string, from, to int64) (TradeWindowSummary, error) {
	var sum TradeWindowSummary
	err := s.db.QueryRow(`
		SELECT COUNT(1), COALESCE(SUM(value), 0)
		FROM trades
		WHERE wallet_address = ? AND traded_at >= ? AND traded_at < ?`,
		wallet, from, to,
	).Scan(&sum.Count, &sum.Volume)
	if err != nil {
		return sum, fmt.Errorf("summarize trades: %w", err)
	}
	return sum, nil
}

// WalletTradeTotals returns the lifetime count and volume of a wallet's trades.
func (s *Store) WalletTradeTotals(wallet string) (count int, volume float64, err error) {
	err = s.db.QueryRow(`
		SELECT COUNT(1), COALESCE(SUM(value), 0)
		FROM trades WHERE wallet_address = ?`,
		wallet,
	).Scan(&count, &volume)
	if err != nil {
		return 0, 0, fmt.Errorf("wallet trade totals: %w", err)
	}
	return count, volume, nil
}
