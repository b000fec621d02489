package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Job statuses.
const (
	JobStarted   = "STARTED"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
)

// Job is one orchestrator run, recorded for observability.
type Job struct {
	ID               int64
	Type             string
	Status           string
	StartedAt        int64
	CompletedAt      int64
	RecordsProcessed int
	DurationMs       int64
	ErrorMessage     string
}

// IndexingStatus is the per-wallet indexing checkpoint and progress record.
type IndexingStatus struct {
	Wallet             string
	LastIndexedAt      int64
	TotalTradesIndexed int
	IsIndexing         bool
	Progress           float64
	ErrorCount         int
	LastError          string
	UpdatedAt          int64
}

// StartJob appends a STARTED job record and returns its id.
func (s *Store) StartJob(jobType string, startedAt int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO indexing_log (job_type, status, started_at) VALUES (?, ?, ?)`,
		jobType, JobStarted, startedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("start job: %w", err)
	}
	return res.LastInsertId()
}

// CompleteJob marks a job COMPLETED.
func (s *Store) CompleteJob(jobID int64, completedAt int64, records int, durationMs int64) error {
	_, err := s.db.Exec(`
		UPDATE indexing_log
		SET status = ?, completed_at = ?, records_processed = ?, duration_ms = ?
		WHERE id = ?`,
		JobCompleted, completedAt, records, durationMs, jobID,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks a job FAILED with an error message.
func (s *Store) FailJob(jobID int64, completedAt int64, errMsg string, durationMs int64) error {
	_, err := s.db.Exec(`
		UPDATE indexing_log
		SET status = ?, completed_at = ?, error_message = ?, duration_ms = ?
		WHERE id = ?`,
		JobFailed, completedAt, errMsg, durationMs, jobID,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetJob fetches a job record by id.
func (s *Store) GetJob(jobID int64) (*Job, error) {
	var j Job
	var completedAt sql.NullInt64
	err := s.db.QueryRow(`
		SELECT id, job_type, status, started_at, completed_at, records_processed, duration_ms, error_message
		FROM indexing_log WHERE id = ?`,
		jobID,
	).Scan(&j.ID, &j.Type, &j.Status, &j.StartedAt, &completedAt, &j.RecordsProcessed, &j.DurationMs, &j.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.CompletedAt = completedAt.Int64
	return &j, nil
}

// RecentJobs returns the latest job records, newest first.
func (s *Store) RecentJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, job_type, status, started_at, completed_at, records_processed, duration_ms, error_message
		FROM indexing_log ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var completedAt sql.NullInt64
		err := rows.Scan(&j.ID, &j.Type, &j.Status, &j.StartedAt, &completedAt,
			&j.RecordsProcessed, &j.DurationMs, &j.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.CompletedAt = completedAt.Int64
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJobsBefore removes job records started before cutoff.
func (s *Store) DeleteJobsBefore(cutoff int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM indexing_log WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetIndexingStatus returns the wallet's checkpoint record. A wallet that
// was never indexed gets a zero-valued status, not an error.
func (s *Store) GetIndexingStatus(wallet string) (*IndexingStatus, error) {
	var st IndexingStatus
	var isIndexing int
	err := s.db.QueryRow(`
		SELECT wallet_address, last_indexed_at, total_trades_indexed, is_indexing,
		       progress, error_count, last_error, updated_at
		FROM indexing_status WHERE wallet_address = ?`,
		wallet,
	).Scan(&st.Wallet, &st.LastIndexedAt, &st.TotalTradesIndexed, &isIndexing,
		&st.Progress, &st.ErrorCount, &st.LastError, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &IndexingStatus{Wallet: wallet}, nil
		}
		return nil, fmt.Errorf("get indexing status: %w", err)
	}
	st.IsIndexing = isIndexing != 0
	return &st, nil
}

// AdvanceCheckpoint moves the wallet's checkpoint forward after a completed
// batch and accumulates the indexed-trade counter.
func (s *Store) AdvanceCheckpoint(wallet string, indexedAt int64, newTrades int) error {
	_, err := s.db.Exec(`
		INSERT INTO indexing_status (wallet_address, last_indexed_at, total_trades_indexed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET
			last_indexed_at = excluded.last_indexed_at,
			total_trades_indexed = indexing_status.total_trades_indexed + ?,
			is_indexing = 0,
			progress = 1,
			error_count = 0,
			last_error = '',
			updated_at = excluded.updated_at`,
		wallet, indexedAt, newTrades, indexedAt, newTrades,
	)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}

// SetIndexing flags a wallet as (not) being reindexed and records progress.
func (s *Store) SetIndexing(wallet string, indexing bool, progress float64, now int64) error {
	_, err := s.db.Exec(`
		INSERT INTO indexing_status (wallet_address, is_indexing, progress, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET
			is_indexing = excluded.is_indexing,
			progress = excluded.progress,
			updated_at = excluded.updated_at`,
		wallet, boolToInt(indexing), progress, now,
	)
	if err != nil {
		return fmt.Errorf("set indexing: %w", err)
	}
	return nil
}

// RecordIndexError increments the wallet's error counter and stores the
// message, clearing the in-progress flag.
func (s *Store) RecordIndexError(wallet string, errMsg string, now int64) error {
	_, err := s.db.Exec(`
		INSERT INTO indexing_status (wallet_address, is_indexing, error_count, last_error, updated_at)
		VALUES (?, 0, 1, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET
			is_indexing = 0,
			error_count = indexing_status.error_count + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		wallet, errMsg, now,
	)
	if err != nil {
		return fmt.Errorf("record index error: %w", err)
	}
	return nil
}

// CheckpointAges returns, per tracked wallet, the last-indexed timestamp.
// Consumed by the stats surface.
func (s *Store) CheckpointAges() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT wallet_address, last_indexed_at FROM indexing_status`)
	if err != nil {
		return nil, fmt.Errorf("checkpoint ages: %w", err)
	}
	defer rows.Close()

	ages := make(map[string]int64)
	for rows.Next() {
		var wallet string
		var ts int64
		if err := rows.Scan(&wallet, &ts); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		ages[wallet] = ts
	}
	return ages, rows.Err()
}
