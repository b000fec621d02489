package app

import (
	"fmt"
	"math"
	"time"
	"whaletracker/config"
	"whaletracker/internal/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Aggregator recomputes whale-level aggregates and periodic rollups from
// ledger state. All divisions are guarded: a wallet with no closed
// positions or no invested capital gets zeros, never NaN.
type Aggregator struct {
	logger *zap.Logger
	store  *store.Store
	cfg    config.MetricsConfig
}

func NewAggregator(logger *zap.Logger, st *store.Store, cfg *config.Config) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger, store: st, cfg: cfg.Metrics}
}

// RefreshWhale recomputes a wallet's aggregate stats from its positions
// and trade history and writes them back to the whale record.
func (a *Aggregator) RefreshWhale(wallet string) error {
	open, err := a.store.ListOpenPositions(wallet)
	if err != nil {
		return fmt.Errorf("refresh whale: %w", err)
	}
	closed, err := a.store.ListClosedPositions(wallet)
	if err != nil {
		return fmt.Errorf("refresh whale: %w", err)
	}
	tradeCount, volume, err := a.store.WalletTradeTotals(wallet)
	if err != nil {
		return fmt.Errorf("refresh whale: %w", err)
	}

	var totalPnl, totalInvested float64
	for _, p := range open {
		totalPnl += p.UnrealizedPnl
		totalInvested += p.TotalInvested
	}

	var wins int
	returns := make([]float64, 0, len(closed))
	for _, c := range closed {
		totalPnl += c.RealizedPnl
		totalInvested += c.TotalInvested
		if c.RealizedPnl > 0 {
			wins++
		}
		returns = append(returns, c.RealizedRoi*100)
	}

	stats := store.WhaleStats{
		TotalVolume:     volume,
		TotalPnl:        totalPnl,
		ActivePositions: len(open),
		TotalTrades:     tradeCount,
	}
	if totalInvested > 0 {
		stats.TotalRoi = totalPnl / totalInvested
	}
	if len(closed) > 0 {
		stats.WinRate = float64(wins) / float64(len(closed)) * 100
	}
	stats.SharpeRatio = sharpeRatio(returns)

	if err := a.store.UpdateWhaleStats(wallet, stats); err != nil {
		return fmt.Errorf("refresh whale: %w", err)
	}
	return nil
}

// GenerateRollup aggregates trade and position deltas within a bucket
// window and upserts the row keyed by (wallet, bucket type, bucket
// start). Safe to re-run for the same bucket; recomputation overwrites.
func (a *Aggregator) GenerateRollup(wallet, bucketType string, bucketStart time.Time) error {
	start := bucketStart.Unix()
	end := bucketEnd(bucketType, bucketStart).Unix()

	trades, err := a.store.SummarizeTrades(wallet, start, end)
	if err != nil {
		return fmt.Errorf("rollup %s/%s: %w", wallet, bucketType, err)
	}
	closed, err := a.store.ClosedPositionsInWindow(wallet, start, end)
	if err != nil {
		return fmt.Errorf("rollup %s/%s: %w", wallet, bucketType, err)
	}

	var pnl, invested float64
	var wins int
	returns := make([]float64, 0, len(closed))
	for _, c := range closed {
		pnl += c.RealizedPnl
		invested += c.TotalInvested
		if c.RealizedPnl > 0 {
			wins++
		}
		returns = append(returns, c.RealizedRoi*100)
	}

	rollup := store.Rollup{
		Wallet:      wallet,
		BucketType:  bucketType,
		BucketStart: start,
		TradesCount: trades.Count,
		Volume:      trades.Volume,
		Pnl:         pnl,
		CreatedAt:   time.Now().Unix(),
	}
	if invested > 0 {
		rollup.Roi = pnl / invested
	}
	if len(closed) > 0 {
		rollup.WinRate = float64(wins) / float64(len(closed)) * 100
	}
	if bucketType == store.BucketWeekly || bucketType == store.BucketMonthly {
		rollup.SharpeRatio = sharpeRatio(returns)
	}

	if err := a.store.UpsertRollup(rollup); err != nil {
		return fmt.Errorf("rollup %s/%s: %w", wallet, bucketType, err)
	}
	return nil
}

// RollupPass runs the scheduled rollups for every tracked whale. Hourly
// and daily buckets run every pass; weekly only on Mondays, monthly only
// on the first of the month. Off-schedule invocations are no-ops, not
// errors. One wallet's failure never blocks the rest.
func (a *Aggregator) RollupPass(now time.Time) error {
	whales, err := a.store.ListTrackedWhales(0)
	if err != nil {
		return fmt.Errorf("rollup pass: %w", err)
	}

	now = now.UTC()
	hourStart := now.Truncate(time.Hour)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var errs error
	for _, w := range whales {
		buckets := []struct {
			bucketType string
			start      time.Time
			due        bool
		}{
			{store.BucketHourly, hourStart, true},
			{store.BucketDaily, dayStart, true},
			{store.BucketWeekly, dayStart, now.Weekday() == time.Monday},
			{store.BucketMonthly, dayStart, now.Day() == 1},
		}
		for _, b := range buckets {
			if !b.due {
				continue
			}
			if err := a.GenerateRollup(w.WalletAddress, b.bucketType, b.start); err != nil {
				a.logger.Warn("rollup failed",
					zap.String("wallet", shortAddress(w.WalletAddress)),
					zap.String("bucketType", b.bucketType),
					zap.Error(err),
				)
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// Cleanup sweeps rollups and job-log rows older than the retention
// horizon.
func (a *Aggregator) Cleanup(now time.Time) error {
	cutoff := now.Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour).Unix()

	rollups, err := a.store.DeleteRollupsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	jobs, err := a.store.DeleteJobsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	if rollups > 0 || jobs > 0 {
		a.logger.Info("retention sweep",
			zap.Int64("rollupsDeleted", rollups),
			zap.Int64("jobsDeleted", jobs),
		)
	}
	return nil
}

func bucketEnd(bucketType string, start time.Time) time.Time {
	switch bucketType {
	case store.BucketHourly:
		return start.Add(time.Hour)
	case store.BucketDaily:
		return start.AddDate(0, 0, 1)
	case store.BucketWeekly:
		return start.AddDate(0, 0, 7)
	case store.BucketMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// sharpeRatio is mean over population standard deviation of per-position
// percentage returns. Zero when there are not enough samples or no
// variance.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}
