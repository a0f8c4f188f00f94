package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scanquest/internal/config"
)

// Ledger is the authoritative side of reconciliation: the scan ledger and
// the player aggregates derived from it.
type Ledger interface {
	RebuildPlayerAggregates(ctx context.Context) (int64, error)
	AllScores(ctx context.Context) (map[string]float64, error)
}

// Cache is the realtime side: the sorted-set leaderboard that can drift
// from the ledger after cache failures or restarts.
type Cache interface {
	BatchSetScores(ctx context.Context, scores map[string]float64) error
	Count(ctx context.Context) (int64, error)
}

// Reconciler periodically repairs the player aggregates from the scan
// ledger and re-primes the leaderboard cache from the repaired aggregates.
type Reconciler struct {
	ledger  Ledger
	cache   Cache
	config  *config.ReconcileConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewReconciler creates a new reconciliation worker. The cache may be nil,
// in which case only aggregate repair runs.
func NewReconciler(ledger Ledger, cache Cache, cfg *config.ReconcileConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		ledger: ledger,
		cache:  cache,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background reconciliation process
func (w *Reconciler) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("reconciliation worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background reconciliation process
func (w *Reconciler) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("reconciliation worker stopped")
	return nil
}

// run is the main worker loop
func (w *Reconciler) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// reconcile runs one repair cycle: aggregates first, then the cache, so the
// cache is primed from already-repaired state.
func (w *Reconciler) reconcile(ctx context.Context) {
	w.logger.Info("starting reconciliation cycle")
	startTime := time.Now()

	repaired, err := w.ledger.RebuildPlayerAggregates(ctx)
	if err != nil {
		w.logger.Error("failed to rebuild player aggregates", "error", err)
		return
	}
	if repaired > 0 {
		w.logger.Warn("repaired drifted player aggregates", "players", repaired)
	}

	primed, err := w.primeCache(ctx)
	if err != nil {
		w.logger.Error("failed to prime leaderboard cache", "error", err)
		return
	}

	w.logger.Info("reconciliation cycle completed",
		"duration", time.Since(startTime),
		"repaired", repaired,
		"primed", primed,
	)
}

// primeCache pushes the authoritative composite scores into the cache
func (w *Reconciler) primeCache(ctx context.Context) (int, error) {
	if w.cache == nil {
		return 0, nil
	}

	scores, err := w.ledger.AllScores(ctx)
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, nil
	}

	if err := w.cache.BatchSetScores(ctx, scores); err != nil {
		return 0, err
	}
	return len(scores), nil
}

// IsRunning returns whether the worker is currently running
func (w *Reconciler) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single reconciliation cycle (used at startup to warm the
// cache before serving traffic)
func (w *Reconciler) RunOnce(ctx context.Context) {
	w.reconcile(ctx)
}
