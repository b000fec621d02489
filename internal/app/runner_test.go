package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	clts "whaletracker/clients"
	"whaletracker/config"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()

	st, err := store.Open(zap.NewNop(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Defaults()
	clients := clts.NewClients(zap.NewNop(), cfg)
	r := NewRunner(zap.NewNop(), cfg, st, clients)

	// Handlers and stats need the hub actor alive.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.hub.Run(ctx)

	return r
}

func TestNewRunner_WiresComponents(t *testing.T) {
	r := newTestRunner(t)

	if r.hub == nil || r.ledger == nil || r.detector == nil {
		t.Error("expected core components to be wired")
	}
	if r.processor == nil || r.indexer == nil || r.aggregator == nil {
		t.Error("expected pipeline components to be wired")
	}
}

func TestHandleWhales_RegisterAndConflict(t *testing.T) {
	r := newTestRunner(t)

	body := `{"wallet_address":"0xABCDEF0123456789abcdef0123456789ABCDEF01","display_name":"test whale"}`

	req := httptest.NewRequest(http.MethodPost, "/api/whales", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.handleWhales(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created store.Whale
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Addresses normalize to lowercase.
	if created.WalletAddress != strings.ToLower("0xABCDEF0123456789abcdef0123456789ABCDEF01") {
		t.Errorf("expected lowercased address, got %s", created.WalletAddress)
	}

	// Registering again conflicts.
	req = httptest.NewRequest(http.MethodPost, "/api/whales", strings.NewReader(body))
	rec = httptest.NewRecorder()
	r.handleWhales(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate registration, got %d", rec.Code)
	}
}

func TestHandleWhales_List(t *testing.T) {
	r := newTestRunner(t)
	registerWhale(t, r.store, walletA, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/whales", nil)
	rec := httptest.NewRecorder()
	r.handleWhales(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Whales []store.Whale `json:"whales"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Whales) != 1 {
		t.Errorf("expected 1 whale, got %d", len(resp.Whales))
	}
}

func TestHandleWhaleStatus_UnknownWallet(t *testing.T) {
	r := newTestRunner(t)

	req := httptest.NewRequest(http.MethodGet, "/api/whales/status?wallet="+walletA, nil)
	rec := httptest.NewRecorder()
	r.handleWhaleStatus(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown wallet, got %d", rec.Code)
	}
}

func TestHandleTriggerUpdate_ReportsPartialSuccess(t *testing.T) {
	r := newTestRunner(t)
	registerWhale(t, r.store, walletA, 10)

	// Swap in a failing source: the run still reports 200 with the
	// failure listed, not an opaque 500.
	source := newFakeTradeSource()
	source.errs[walletA] = errTest
	r.indexer = NewIndexer(zap.NewNop(), r.store, source, r.processor, r.cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/index/update", nil)
	rec := httptest.NewRecorder()
	r.handleTriggerUpdate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with partial failures, got %d", rec.Code)
	}

	var report RunReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Failures) != 1 {
		t.Errorf("expected the wallet failure in the report, got %v", report.Failures)
	}
}

func TestHandleTriggerUpdate_MethodNotAllowed(t *testing.T) {
	r := newTestRunner(t)

	req := httptest.NewRequest(http.MethodGet, "/api/index/update", nil)
	rec := httptest.NewRecorder()
	r.handleTriggerUpdate(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	r := newTestRunner(t)

	stats := r.GetStats()
	if stats.Build.GoVersion == "" {
		t.Error("expected go version in build info")
	}
	if stats.Hub.Sessions != 0 {
		t.Errorf("fresh runner should report zero sessions, got %d", stats.Hub.Sessions)
	}
}
