package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(zap.NewNop(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schema.db")
	s, err := Open(zap.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{
		"whales", "trades", "positions", "closed_positions",
		"whale_events", "rollups", "indexing_log", "indexing_status",
	} {
		assert.True(t, found[table], "missing table %s", table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := Open(zap.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not fail on the existing schema.
	s, err = Open(zap.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestWhaleCreateAndGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	w := Whale{
		WalletAddress:   "0xabc",
		DisplayName:     "abc",
		FirstSeenAt:     100,
		LastActivityAt:  100,
		IsActive:        true,
		TrackingEnabled: true,
	}
	require.NoError(t, s.CreateWhale(w))

	got, err := s.GetWhale("0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.WalletAddress)
	assert.True(t, got.TrackingEnabled)
	assert.Equal(t, int64(100), got.FirstSeenAt)

	_, err = s.GetWhale("0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWhaleDuplicateRegistration(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	w := Whale{WalletAddress: "0xdup", FirstSeenAt: 1, LastActivityAt: 1, IsActive: true, TrackingEnabled: true}
	require.NoError(t, s.CreateWhale(w))

	err := s.CreateWhale(w)
	assert.ErrorIs(t, err, ErrDuplicateWhale)
}

func TestEnsureWhale(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	w, err := s.EnsureWhale("0x1234567890abcdef", 500)
	require.NoError(t, err)
	assert.Equal(t, "0x12345678", w.DisplayName)
	assert.True(t, w.TrackingEnabled)

	// Second ensure returns the existing record untouched.
	again, err := s.EnsureWhale("0x1234567890abcdef", 900)
	require.NoError(t, err)
	assert.Equal(t, int64(500), again.FirstSeenAt)
}

func TestListTrackedWhalesOrdering(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, w := range []Whale{
		{WalletAddress: "0xsmall", FirstSeenAt: 1, LastActivityAt: 1, IsActive: true, TrackingEnabled: true},
		{WalletAddress: "0xbig", FirstSeenAt: 1, LastActivityAt: 1, IsActive: true, TrackingEnabled: true},
		{WalletAddress: "0xdisabled", FirstSeenAt: 1, LastActivityAt: 1, IsActive: true, TrackingEnabled: false},
	} {
		require.NoError(t, s.CreateWhale(w))
	}
	require.NoError(t, s.UpdateWhaleStats("0xbig", WhaleStats{TotalVolume: 9000}))
	require.NoError(t, s.UpdateWhaleStats("0xsmall", WhaleStats{TotalVolume: 10}))

	whales, err := s.ListTrackedWhales(10)
	require.NoError(t, err)
	require.Len(t, whales, 2)
	assert.Equal(t, "0xbig", whales[0].WalletAddress)
	assert.Equal(t, "0xsmall", whales[1].WalletAddress)
}

func TestTradeInsertAndExists(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	tr := Trade{
		ID: "tx1_0", Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0,
		Side: "BUY", Size: 100, Price: 0.5, Value: 50, TradedAt: 1000,
	}

	exists, err := s.TradeExists(tr.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.InsertTrade(tr))

	exists, err = s.TradeExists(tr.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := s.CountTradesForKey("0xabc", "m1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSummarizeTradesWindow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for i, tradedAt := range []int64{100, 200, 300} {
		require.NoError(t, s.InsertTrade(Trade{
			ID: string(rune('a' + i)), Wallet: "0xabc", MarketID: "m1",
			Side: "BUY", Size: 10, Price: 0.5, Value: 5, TradedAt: tradedAt,
		}))
	}

	sum, err := s.SummarizeTrades("0xabc", 100, 300)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 10.0, sum.Volume, 1e-9)
}

func TestPositionLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	p := Position{
		Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0,
		Size: 100, AvgEntryPrice: 0.5, TotalInvested: 50,
		OpenedAt: 1000, UpdatedAt: 1000,
	}
	id, err := s.InsertPosition(p)
	require.NoError(t, err)

	got, err := s.GetPosition("0xabc", "m1", 0)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.InDelta(t, 100.0, got.Size, 1e-9)

	got.Size = 150
	got.TotalInvested = 80
	require.NoError(t, s.UpdatePosition(*got))

	updated, err := s.GetPosition("0xabc", "m1", 0)
	require.NoError(t, err)
	assert.InDelta(t, 150.0, updated.Size, 1e-9)

	require.NoError(t, s.ClosePosition(id, ClosedPosition{
		Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0,
		Size: 150, AvgEntryPrice: 0.5, TotalInvested: 80,
		AvgExitPrice: 0.9, TotalReturned: 135, RealizedPnl: 55, RealizedRoi: 68.75,
		OpenedAt: 1000, ClosedAt: 2000, HoldDuration: 1000,
	}))

	_, err = s.GetPosition("0xabc", "m1", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	closed, err := s.ListClosedPositions("0xabc")
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.InDelta(t, 55.0, closed[0].RealizedPnl, 1e-9)
}

func TestPositionUniquePerKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	p := Position{Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 1, Size: 1, AvgEntryPrice: 0.5, TotalInvested: 0.5, OpenedAt: 1, UpdatedAt: 1}
	_, err := s.InsertPosition(p)
	require.NoError(t, err)

	_, err = s.InsertPosition(p)
	assert.Error(t, err, "second open position for the same key must be rejected")
}

func TestRollupUpsertIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r := Rollup{
		Wallet: "0xabc", BucketType: BucketDaily, BucketStart: 86400,
		TradesCount: 5, Volume: 1000, Pnl: 50, Roi: 5, WinRate: 60, CreatedAt: 90000,
	}
	require.NoError(t, s.UpsertRollup(r))
	require.NoError(t, s.UpsertRollup(r))

	count, err := s.CountRollups("0xabc", BucketDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-running the same rollup must not add rows")

	got, err := s.GetRollup("0xabc", BucketDaily, 86400)
	require.NoError(t, err)
	assert.Equal(t, 5, got.TradesCount)
	assert.InDelta(t, 1000.0, got.Volume, 1e-9)

	// Recomputation overwrites.
	r.TradesCount = 7
	require.NoError(t, s.UpsertRollup(r))
	got, err = s.GetRollup("0xabc", BucketDaily, 86400)
	require.NoError(t, err)
	assert.Equal(t, 7, got.TradesCount)
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id, err := s.StartJob("WHALE_UPDATE", 1000)
	require.NoError(t, err)

	job, err := s.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, JobStarted, job.Status)

	require.NoError(t, s.CompleteJob(id, 2000, 12, 1000))
	job, err = s.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, 12, job.RecordsProcessed)

	id2, err := s.StartJob("WHALE_UPDATE", 3000)
	require.NoError(t, err)
	require.NoError(t, s.FailJob(id2, 3500, "upstream down", 500))
	job, err = s.GetJob(id2)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, "upstream down", job.ErrorMessage)

	jobs, err := s.RecentJobs(10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, id2, jobs[0].ID, "newest first")
}

func TestRetentionDeletes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	old := Rollup{Wallet: "0xabc", BucketType: BucketHourly, BucketStart: 100, CreatedAt: 100}
	fresh := Rollup{Wallet: "0xabc", BucketType: BucketHourly, BucketStart: 5000, CreatedAt: 5000}
	require.NoError(t, s.UpsertRollup(old))
	require.NoError(t, s.UpsertRollup(fresh))

	jobOld, err := s.StartJob("WHALE_UPDATE", 100)
	require.NoError(t, err)
	_, err = s.StartJob("WHALE_UPDATE", 5000)
	require.NoError(t, err)

	removed, err := s.DeleteRollupsBefore(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removedJobs, err := s.DeleteJobsBefore(1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removedJobs)

	_, err = s.GetJob(jobOld)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckpointBookkeeping(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	st, err := s.GetIndexingStatus("0xnew")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.LastIndexedAt, "unindexed wallet starts from zero")

	require.NoError(t, s.AdvanceCheckpoint("0xnew", 1000, 5))
	require.NoError(t, s.AdvanceCheckpoint("0xnew", 2000, 3))

	st, err = s.GetIndexingStatus("0xnew")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), st.LastIndexedAt)
	assert.Equal(t, 8, st.TotalTradesIndexed)
	assert.False(t, st.IsIndexing)

	require.NoError(t, s.SetIndexing("0xnew", true, 0.5, 2500))
	st, err = s.GetIndexingStatus("0xnew")
	require.NoError(t, err)
	assert.True(t, st.IsIndexing)
	assert.InDelta(t, 0.5, st.Progress, 1e-9)

	require.NoError(t, s.RecordIndexError("0xnew", "boom", 3000))
	st, err = s.GetIndexingStatus("0xnew")
	require.NoError(t, err)
	assert.False(t, st.IsIndexing)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, "boom", st.LastError)

	ages, err := s.CheckpointAges()
	require.NoError(t, err)
	assert.Contains(t, ages, "0xnew")
}

func TestEventsAppendOnly(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	require.NoError(t, s.InsertEvent(Event{
		Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0,
		Type: "LARGE_TRADE", Severity: "HIGH", Payload: `{"value":12000}`, DetectedAt: 100,
	}))
	require.NoError(t, s.InsertEvent(Event{
		Wallet: "0xabc", MarketID: "m1", OutcomeIndex: 0,
		Type: "EXIT", Severity: "NORMAL", Payload: `{}`, DetectedAt: 200,
	}))

	events, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "EXIT", events[0].Type, "newest first")
}
