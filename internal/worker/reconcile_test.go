package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scanquest/internal/config"
	"github.com/scanquest/internal/domain"
	"github.com/scanquest/internal/memory"
)

type recordingCache struct {
	scores map[string]float64
}

func (c *recordingCache) BatchSetScores(ctx context.Context, scores map[string]float64) error {
	for id, score := range scores {
		c.scores[id] = score
	}
	return nil
}

func (c *recordingCache) Count(ctx context.Context) (int64, error) {
	return int64(len(c.scores)), nil
}

func seedScan(t *testing.T, store *memory.Store, playerID, siteID string, points int64, at time.Time) {
	t.Helper()
	_, _, err := store.InsertScan(context.Background(), &domain.ScanRecord{
		ID:        uuid.New().String(),
		PlayerID:  playerID,
		SiteID:    siteID,
		SiteName:  siteID,
		Points:    points,
		ScannedAt: at,
	})
	if err != nil {
		t.Fatalf("seeding scan failed: %v", err)
	}
}

func TestRunOncePrimesCache(t *testing.T) {
	store := memory.NewStore()
	cache := &recordingCache{scores: make(map[string]float64)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	seedScan(t, store, "p1", "s1", 10, base)
	seedScan(t, store, "p1", "s2", 20, base.Add(time.Hour))
	seedScan(t, store, "p2", "s1", 10, base)

	w := NewReconciler(store, cache, &config.ReconcileConfig{Interval: time.Minute}, logger)
	w.RunOnce(context.Background())

	if len(cache.scores) != 2 {
		t.Fatalf("expected 2 primed scores, got %d", len(cache.scores))
	}
	if domain.PointsFromComposite(cache.scores["p1"]) != 30 {
		t.Fatalf("expected p1 composite to carry 30 points, got %f", cache.scores["p1"])
	}
	if domain.PointsFromComposite(cache.scores["p2"]) != 10 {
		t.Fatalf("expected p2 composite to carry 10 points, got %f", cache.scores["p2"])
	}
}

func TestRunOnceWithoutCache(t *testing.T) {
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	seedScan(t, store, "p1", "s1", 10, time.Now())

	w := NewReconciler(store, nil, &config.ReconcileConfig{Interval: time.Minute}, logger)
	// Must not panic without a cache.
	w.RunOnce(context.Background())
}

func TestStartAndStop(t *testing.T) {
	store := memory.NewStore()
	cache := &recordingCache{scores: make(map[string]float64)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := NewReconciler(store, cache, &config.ReconcileConfig{Interval: time.Hour}, logger)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !w.IsRunning() {
		t.Fatalf("worker should report running")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if w.IsRunning() {
		t.Fatalf("worker should report stopped")
	}
}
