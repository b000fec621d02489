package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"whaletracker/clients/clobapi"
	"whaletracker/clients/notifier"
	"whaletracker/config"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

var errTest = errors.New("boom")

// fakeConn is a hub connection that records everything sent to it.
type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	failed bool
	closed bool
}

func (c *fakeConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("connection dead")
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeNotifier records event alerts.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []notifier.EventAlert
}

func (n *fakeNotifier) SendEventAlert(alert notifier.EventAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// fakeTradeSource serves canned trade pages per wallet.
type fakeTradeSource struct {
	mu      sync.Mutex
	trades  map[string][]clobapi.TradeRecord
	errs    map[string]error
	calls   []clobapi.HistoryOptions
	wallets []string
}

func newFakeTradeSource() *fakeTradeSource {
	return &fakeTradeSource{
		trades: make(map[string][]clobapi.TradeRecord),
		errs:   make(map[string]error),
	}
}

func (s *fakeTradeSource) GetTradeHistory(_ context.Context, wallet string, opts clobapi.HistoryOptions) ([]clobapi.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, opts)
	s.wallets = append(s.wallets, wallet)

	if err := s.errs[wallet]; err != nil {
		return nil, err
	}

	all := s.trades[wallet]
	var page []clobapi.TradeRecord
	for _, tr := range all {
		if opts.Since > 0 && tr.Timestamp <= opts.Since {
			continue
		}
		page = append(page, tr)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(page) {
			return nil, nil
		}
		page = page[opts.Offset:]
	}
	if opts.Limit > 0 && len(page) > opts.Limit {
		page = page[:opts.Limit]
	}
	return page, nil
}

// pipeline bundles the wired components for tests.
type pipeline struct {
	store      *store.Store
	ledger     *Ledger
	detector   *Detector
	hub        *Hub
	notifier   *fakeNotifier
	aggregator *Aggregator
	processor  *Processor
	source     *fakeTradeSource
	indexer    *Indexer
	cfg        *config.Config
}

// newTestPipeline wires a full pipeline against a temp-dir store, with
// the hub actor running until the test ends.
func newTestPipeline(t *testing.T) *pipeline {
	t.Helper()

	st, err := store.Open(zap.NewNop(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Defaults()
	cfg.Clob.BatchSize = 100

	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	ntf := &fakeNotifier{}
	ledger := NewLedger(zap.NewNop(), st)
	detector := NewDetector(zap.NewNop(), cfg)
	aggregator := NewAggregator(zap.NewNop(), st, cfg)
	processor := NewProcessor(zap.NewNop(), st, ledger, detector, hub, ntf, aggregator)
	source := newFakeTradeSource()
	indexer := NewIndexer(zap.NewNop(), st, source, processor, cfg)

	return &pipeline{
		store:      st,
		ledger:     ledger,
		detector:   detector,
		hub:        hub,
		notifier:   ntf,
		aggregator: aggregator,
		processor:  processor,
		source:     source,
		indexer:    indexer,
		cfg:        cfg,
	}
}

// buyTrade and sellTrade build raw fills with sensible defaults.
func buyTrade(id, wallet, market string, outcome int, size, price float64, ts int64) clobapi.TradeRecord {
	return clobapi.TradeRecord{
		ID:           id,
		Wallet:       wallet,
		MarketID:     market,
		OutcomeIndex: outcome,
		Side:         "BUY",
		Size:         size,
		Price:        price,
		TxHash:       "0xtx-" + id,
		Timestamp:    ts,
	}
}

func sellTrade(id, wallet, market string, outcome int, size, price float64, ts int64) clobapi.TradeRecord {
	tr := buyTrade(id, wallet, market, outcome, size, price, ts)
	tr.Side = "SELL"
	return tr
}

// mustIngest feeds one fill through the processor and fails the test on
// any error.
func (p *pipeline) mustIngest(t *testing.T, wallet string, raw clobapi.TradeRecord) IngestResult {
	t.Helper()
	result, err := p.processor.Ingest(wallet, raw)
	if err != nil {
		t.Fatalf("ingest %s: %v", raw.ID, err)
	}
	return result
}
