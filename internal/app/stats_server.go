package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

// startStatsServer starts the HTTP surface: health, stats, the live
// websocket channel, and the manual trigger endpoints.
func (r *Runner) startStatsServer(port int) {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// JSON stats endpoint
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, r.GetStats())
	})

	// Live channel: subscribe/unsubscribe/ping frames in, trade events out
	mux.HandleFunc("/ws", r.hub.ServeWS)

	mux.HandleFunc("/api/whales", r.handleWhales)
	mux.HandleFunc("/api/whales/status", r.handleWhaleStatus)
	mux.HandleFunc("/api/events/recent", r.handleRecentEvents)
	mux.HandleFunc("/api/jobs/recent", r.handleRecentJobs)
	mux.HandleFunc("/api/index/update", r.handleTriggerUpdate)
	mux.HandleFunc("/api/index/reindex", r.handleTriggerReindex)
	mux.HandleFunc("/api/rollups/run", r.handleTriggerRollups)

	r.statsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := r.statsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("stats server failed", zap.Error(err))
		}
	}()
}

// handleWhales lists tracked whales (GET) or registers one (POST).
func (r *Runner) handleWhales(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		whales, err := r.store.ListTrackedWhales(queryInt(req, "limit", 50))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"whales": whales})

	case http.MethodPost:
		var body struct {
			WalletAddress string `json:"wallet_address"`
			DisplayName   string `json:"display_name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "malformed body")
			return
		}
		body.WalletAddress = strings.ToLower(strings.TrimSpace(body.WalletAddress))
		if body.WalletAddress == "" {
			writeError(w, http.StatusBadRequest, "wallet_address required")
			return
		}

		now := time.Now().Unix()
		whale := store.Whale{
			WalletAddress:   body.WalletAddress,
			DisplayName:     body.DisplayName,
			FirstSeenAt:     now,
			LastActivityAt:  now,
			IsActive:        true,
			TrackingEnabled: true,
		}
		if err := r.store.CreateWhale(whale); err != nil {
			if errors.Is(err, store.ErrDuplicateWhale) {
				writeError(w, http.StatusConflict, "whale already registered")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, whale)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWhaleStatus reports one wallet's indexing checkpoint and progress.
func (r *Runner) handleWhaleStatus(w http.ResponseWriter, req *http.Request) {
	wallet := strings.ToLower(strings.TrimSpace(req.URL.Query().Get("wallet")))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet required")
		return
	}

	whale, err := r.store.GetWhale(wallet)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown wallet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, err := r.store.GetIndexingStatus(wallet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"whale":  whale,
		"status": status,
	})
}

func (r *Runner) handleRecentEvents(w http.ResponseWriter, req *http.Request) {
	events, err := r.store.RecentEvents(queryInt(req, "limit", 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (r *Runner) handleRecentJobs(w http.ResponseWriter, req *http.Request) {
	jobs, err := r.store.RecentJobs(queryInt(req, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleTriggerUpdate runs the same entry point the scheduler uses. A
// run with some failed wallets still reports 200; the failures ride
// along in the body.
func (r *Runner) handleTriggerUpdate(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := r.indexer.UpdateActiveWhales(req.Context())
	if err != nil {
		if errors.Is(err, ErrRunInFlight) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (r *Runner) handleTriggerReindex(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	wallet := strings.ToLower(strings.TrimSpace(req.URL.Query().Get("wallet")))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet required")
		return
	}

	report, err := r.indexer.ReindexWhale(req.Context(), wallet)
	if err != nil {
		if errors.Is(err, ErrRunInFlight) {
			writeError(w, http.StatusConflict, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (r *Runner) handleTriggerRollups(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := r.aggregator.RollupPass(time.Now()); err != nil {
		// Partial failure: the pass keeps going past failed wallets.
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "completed_with_errors",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(req *http.Request, key string, fallback int) int {
	v := req.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
