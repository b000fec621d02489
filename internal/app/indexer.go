package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"whaletracker/clients/clobapi"
	"whaletracker/config"
	"whaletracker/internal/store"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrRunInFlight is returned when a run is requested while another run
// holds the single-flight guard.
var ErrRunInFlight = errors.New("indexing run already in flight")

// Job types recorded per orchestrator run.
const (
	JobTypeUpdate  = "whale_update"
	JobTypeReindex = "whale_reindex"
)

// TradeSource is the external market-data collaborator the indexer
// pulls fills from. Implemented by clobapi.Client.
type TradeSource interface {
	GetTradeHistory(ctx context.Context, wallet string, opts clobapi.HistoryOptions) ([]clobapi.TradeRecord, error)
}

// WalletFailure records one wallet whose update failed within an
// otherwise successful run.
type WalletFailure struct {
	Wallet string `json:"wallet"`
	Error  string `json:"error"`
}

// RunReport summarizes one orchestrator run for callers that triggered
// it manually.
type RunReport struct {
	JobID            int64           `json:"job_id"`
	WalletsProcessed int             `json:"wallets_processed"`
	TradesProcessed  int             `json:"trades_processed"`
	NewTrades        int             `json:"new_trades"`
	Failures         []WalletFailure `json:"failures,omitempty"`
	Duration         time.Duration   `json:"-"`
}

// Indexer drives the ingestion pipeline: it pulls new fills per wallet
// from the trade source and feeds them through the processor one at a
// time, in arrival order. Wallets are processed sequentially; that
// discipline, not store-level locking, is what keeps the ledger
// race-free.
type Indexer struct {
	logger    *zap.Logger
	store     *store.Store
	source    TradeSource
	processor *Processor
	cfg       config.IndexerConfig
	batchSize int

	// Single-flight guard: a manual trigger while a scheduled run is in
	// flight is rejected instead of interleaving ledger updates.
	runMu sync.Mutex
}

func NewIndexer(logger *zap.Logger, st *store.Store, source TradeSource, processor *Processor, cfg *config.Config) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.Clob.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Indexer{
		logger:    logger,
		store:     st,
		source:    source,
		processor: processor,
		cfg:       cfg.Indexer,
		batchSize: batchSize,
	}
}

// UpdateActiveWhales runs one incremental update: for each
// tracking-enabled wallet (bounded batch, descending volume), fetch
// fills since the wallet's checkpoint and ingest them in order. One
// wallet's failure is recorded and skipped; a failure before any wallet
// is processed fails the whole job.
func (ix *Indexer) UpdateActiveWhales(ctx context.Context) (*RunReport, error) {
	if !ix.runMu.TryLock() {
		return nil, ErrRunInFlight
	}
	defer ix.runMu.Unlock()

	started := time.Now()
	jobID, err := ix.store.StartJob(JobTypeUpdate, started.Unix())
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	report := &RunReport{JobID: jobID}

	whales, err := ix.store.ListTrackedWhales(ix.cfg.MaxWhalesPerUpdate)
	if err != nil {
		failErr := fmt.Errorf("load wallet list: %w", err)
		ix.finishJob(jobID, started, report, failErr)
		return report, failErr
	}

	var walletErrs error
	for _, whale := range whales {
		if ctx.Err() != nil {
			break
		}
		if err := ix.updateWallet(ctx, whale.WalletAddress, report); err != nil {
			ix.logger.Warn("wallet update failed",
				zap.String("wallet", shortAddress(whale.WalletAddress)),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, WalletFailure{
				Wallet: whale.WalletAddress,
				Error:  err.Error(),
			})
			walletErrs = multierr.Append(walletErrs, err)
			if recErr := ix.store.RecordIndexError(whale.WalletAddress, err.Error(), time.Now().Unix()); recErr != nil {
				ix.logger.Warn("failed to record index error", zap.Error(recErr))
			}
			continue
		}
		report.WalletsProcessed++
	}

	ix.finishJob(jobID, started, report, nil)
	report.Duration = time.Since(started)

	if walletErrs != nil {
		ix.logger.Warn("whale update finished with wallet failures",
			zap.Int64("jobId", jobID),
			zap.Int("failed", len(report.Failures)),
			zap.Error(walletErrs),
		)
	}
	ix.logger.Info("whale update completed",
		zap.Int64("jobId", jobID),
		zap.Int("wallets", report.WalletsProcessed),
		zap.Int("newTrades", report.NewTrades),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// updateWallet fetches and ingests fills since the wallet's checkpoint.
// The checkpoint advances only after the whole batch lands.
func (ix *Indexer) updateWallet(ctx context.Context, wallet string, report *RunReport) error {
	status, err := ix.store.GetIndexingStatus(wallet)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	trades, err := ix.source.GetTradeHistory(ctx, wallet, clobapi.HistoryOptions{
		Since: status.LastIndexedAt,
		Limit: ix.batchSize,
	})
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	newTrades, err := ix.ingestBatch(wallet, trades, report)
	if err != nil {
		return err
	}

	if err := ix.store.AdvanceCheckpoint(wallet, time.Now().Unix(), newTrades); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}

// ReindexWhale rebuilds a wallet's history from the beginning, ignoring
// the checkpoint. Unknown wallets are registered first, so this is also
// the backfill path for a newly watched address. Pages through the full
// trade history; progress is surfaced through the wallet's indexing
// status.
func (ix *Indexer) ReindexWhale(ctx context.Context, wallet string) (*RunReport, error) {
	if !ix.runMu.TryLock() {
		return nil, ErrRunInFlight
	}
	defer ix.runMu.Unlock()

	started := time.Now()
	if _, err := ix.store.EnsureWhale(wallet, started.Unix()); err != nil {
		return nil, fmt.Errorf("reindex: %w", err)
	}

	jobID, err := ix.store.StartJob(JobTypeReindex, started.Unix())
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}
	report := &RunReport{JobID: jobID}

	if err := ix.store.SetIndexing(wallet, true, 0, started.Unix()); err != nil {
		ix.logger.Warn("failed to mark indexing", zap.Error(err))
	}

	var runErr error
	for offset := 0; ; offset += ix.batchSize {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		trades, err := ix.source.GetTradeHistory(ctx, wallet, clobapi.HistoryOptions{
			Limit:  ix.batchSize,
			Offset: offset,
		})
		if err != nil {
			runErr = fmt.Errorf("fetch page at offset %d: %w", offset, err)
			break
		}
		if len(trades) == 0 {
			break
		}

		if _, err := ix.ingestBatch(wallet, trades, report); err != nil {
			runErr = err
			break
		}

		progress := float64(offset + len(trades))
		if err := ix.store.SetIndexing(wallet, true, progress, time.Now().Unix()); err != nil {
			ix.logger.Warn("failed to update progress", zap.Error(err))
		}

		if len(trades) < ix.batchSize {
			break
		}
	}

	if err := ix.store.SetIndexing(wallet, false, 0, time.Now().Unix()); err != nil {
		ix.logger.Warn("failed to clear indexing flag", zap.Error(err))
	}
	if runErr == nil {
		if err := ix.store.AdvanceCheckpoint(wallet, time.Now().Unix(), report.NewTrades); err != nil {
			ix.logger.Warn("failed to advance checkpoint", zap.Error(err))
		}
		report.WalletsProcessed = 1
	} else {
		if recErr := ix.store.RecordIndexError(wallet, runErr.Error(), time.Now().Unix()); recErr != nil {
			ix.logger.Warn("failed to record index error", zap.Error(recErr))
		}
	}

	ix.finishJob(jobID, started, report, runErr)
	report.Duration = time.Since(started)
	return report, runErr
}

// ingestBatch feeds fills through the processor in arrival order.
// A ValidationError on one fill is logged and skipped; persistence
// failures abort the batch.
func (ix *Indexer) ingestBatch(wallet string, trades []clobapi.TradeRecord, report *RunReport) (int, error) {
	var newTrades int
	for _, raw := range trades {
		result, err := ix.processor.Ingest(wallet, raw)
		if err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				ix.logger.Warn("skipping malformed trade",
					zap.String("wallet", shortAddress(wallet)),
					zap.String("tradeId", shortID(raw.ID)),
					zap.Error(err),
				)
				continue
			}
			return newTrades, fmt.Errorf("ingest trade %s: %w", shortID(result.TradeID), err)
		}
		report.TradesProcessed++
		if result.IsNew {
			newTrades++
			report.NewTrades++
		}
	}
	return newTrades, nil
}

// finishJob records the job outcome. A run with per-wallet failures but
// at least one processed wallet still completes; only a setup failure
// marks the job FAILED.
func (ix *Indexer) finishJob(jobID int64, started time.Time, report *RunReport, runErr error) {
	durationMs := time.Since(started).Milliseconds()
	completedAt := time.Now().Unix()

	if runErr != nil {
		if err := ix.store.FailJob(jobID, completedAt, runErr.Error(), durationMs); err != nil {
			ix.logger.Error("failed to record job failure", zap.Int64("jobId", jobID), zap.Error(err))
		}
		return
	}
	if err := ix.store.CompleteJob(jobID, completedAt, report.TradesProcessed, durationMs); err != nil {
		ix.logger.Error("failed to record job completion", zap.Int64("jobId", jobID), zap.Error(err))
	}
}
