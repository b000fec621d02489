package app

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
	clts "whaletracker/clients"
	"whaletracker/config"
	"whaletracker/internal/store"

	"go.uber.org/zap"
)

// Build info - populated from embedded VCS info at init time
var (
	BuildCommit = "dev"
	BuildTime   = "unknown"
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if setting.Value != "" {
					BuildCommit = setting.Value
				}
			case "vcs.time":
				BuildTime = setting.Value
			}
		}
	}
}

// Runner owns the component graph and the scheduling loops.
type Runner struct {
	logger  *zap.Logger
	cfg     *config.Config
	store   *store.Store
	clients *clts.Clients

	hub        *Hub
	ledger     *Ledger
	detector   *Detector
	aggregator *Aggregator
	processor  *Processor
	indexer    *Indexer

	statsServer *http.Server
	startTime   time.Time
}

// ServiceStats is the /stats payload.
type ServiceStats struct {
	Build struct {
		Commit    string `json:"commit"`
		Time      string `json:"time,omitempty"`
		GoVersion string `json:"go_version"`
	} `json:"build"`

	StartTime string `json:"start_time"`
	Uptime    string `json:"uptime"`
	UptimeSec int64  `json:"uptime_seconds"`

	Hub HubStats `json:"hub"`

	Indexing struct {
		LastJob        *store.Job       `json:"last_job,omitempty"`
		CheckpointAges map[string]int64 `json:"checkpoint_ages,omitempty"`
	} `json:"indexing"`
}

func NewRunner(logger *zap.Logger, cfg *config.Config, st *store.Store, clients *clts.Clients) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		logger:  logger,
		cfg:     cfg,
		store:   st,
		clients: clients,
	}

	r.hub = NewHub(logger)
	r.ledger = NewLedger(logger, st)
	r.detector = NewDetector(logger, cfg)
	r.aggregator = NewAggregator(logger, st, cfg)
	r.processor = NewProcessor(logger, st, r.ledger, r.detector, r.hub, clients.Notifier, r.aggregator)
	r.indexer = NewIndexer(logger, st, clients.Clob, r.processor, cfg)

	return r
}

// Run starts the hub, the stats server and the scheduling loops, then
// blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()

	r.logger.Info("starting whale tracker pipeline",
		zap.Duration("updateInterval", r.cfg.Indexer.UpdateInterval),
		zap.Duration("rollupInterval", r.cfg.Metrics.RollupInterval),
		zap.Int("maxWhalesPerUpdate", r.cfg.Indexer.MaxWhalesPerUpdate),
	)

	go r.hub.Run(ctx)

	if r.cfg.Server.Enabled {
		r.startStatsServer(r.cfg.Server.Port)
		r.logger.Info("stats server started", zap.Int("port", r.cfg.Server.Port))
	}

	go r.runIndexLoop(ctx)
	go r.runRollupLoop(ctx)
	go r.runRetentionLoop(ctx)

	<-ctx.Done()
	r.logger.Info("runner shutting down")

	if r.statsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = r.statsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	if err := r.clients.Close(); err != nil {
		r.logger.Warn("client shutdown", zap.Error(err))
	}

	return nil
}

// runIndexLoop triggers incremental whale updates on a fixed cadence.
// One immediate run on startup, then the ticker.
func (r *Runner) runIndexLoop(ctx context.Context) {
	r.runIndexOnce(ctx)

	ticker := time.NewTicker(r.cfg.Indexer.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runIndexOnce(ctx)
		}
	}
}

func (r *Runner) runIndexOnce(ctx context.Context) {
	if _, err := r.indexer.UpdateActiveWhales(ctx); err != nil {
		if errors.Is(err, ErrRunInFlight) {
			r.logger.Info("skipping scheduled update, run already in flight")
			return
		}
		r.logger.Warn("scheduled whale update failed", zap.Error(err))
	}
}

func (r *Runner) runRollupLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Metrics.RollupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.aggregator.RollupPass(time.Now()); err != nil {
				r.logger.Warn("rollup pass finished with errors", zap.Error(err))
			}
		}
	}
}

func (r *Runner) runRetentionLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.aggregator.Cleanup(time.Now()); err != nil {
				r.logger.Warn("retention sweep failed", zap.Error(err))
			}
		}
	}
}

// GetStats assembles the service stats snapshot.
func (r *Runner) GetStats() ServiceStats {
	var stats ServiceStats

	stats.Build.Commit = BuildCommit
	stats.Build.Time = BuildTime
	stats.Build.GoVersion = runtime.Version()

	stats.StartTime = r.startTime.Format(time.RFC3339)
	uptime := time.Since(r.startTime)
	stats.Uptime = uptime.Round(time.Second).String()
	stats.UptimeSec = int64(uptime.Seconds())

	stats.Hub = r.hub.Stats()

	if jobs, err := r.store.RecentJobs(1); err == nil && len(jobs) > 0 {
		stats.Indexing.LastJob = &jobs[0]
	}
	if ages, err := r.store.CheckpointAges(); err == nil {
		stats.Indexing.CheckpointAges = ages
	}

	return stats
}
