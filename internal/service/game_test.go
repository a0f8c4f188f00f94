package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/scanquest/internal/config"
	"github.com/scanquest/internal/domain"
	"github.com/scanquest/internal/memory"
)

const (
	playLat = 27.7172
	playLng = 85.324
)

func testConfig() *config.GameConfig {
	return &config.GameConfig{
		PlayAreaLat:     playLat,
		PlayAreaLng:     playLng,
		PlayAreaRadiusM: 15000,
		SiteRadiusM:     2000,
		PrizePolicy:     string(domain.PrizePolicyPerSite),
		DefaultLimit:    10,
		MaxLimit:        100,
	}
}

func testGame(t *testing.T, store *memory.Store, cfg *config.GameConfig) *Game {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGame(store, nil, cfg, logger)
}

func seedSite(store *memory.Store, id, name string, points int64, lat, lng float64) {
	store.AddSite(domain.Site{
		ID:        id,
		Name:      name,
		Latitude:  lat,
		Longitude: lng,
		Points:    points,
		Status:    domain.SiteStatusActive,
	})
}

func submission(playerID, token string, lat, lng float64) domain.ScanSubmission {
	return domain.ScanSubmission{
		PlayerID:  playerID,
		Username:  playerID,
		Token:     token,
		Latitude:  &lat,
		Longitude: &lng,
	}
}

func TestSubmitScanCreditsFirstScan(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())
	ctx := context.Background()

	outcome, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanCredited {
		t.Fatalf("expected credited, got %s", outcome.Status)
	}
	if outcome.Record.Points != 20 {
		t.Fatalf("expected 20 points on record, got %d", outcome.Record.Points)
	}
	if outcome.Player.TotalPoints != 20 || outcome.Player.ScanCount != 1 {
		t.Fatalf("aggregate not updated: %d points, %d scans",
			outcome.Player.TotalPoints, outcome.Player.ScanCount)
	}

	entries, err := game.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard failed: %v", err)
	}
	if len(entries) != 1 || entries[0].PlayerID != "p1" || entries[0].Points != 20 {
		t.Fatalf("leaderboard does not reflect the scan: %+v", entries)
	}
}

func TestSubmitScanRejectsRescan(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())
	ctx := context.Background()

	if _, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng)); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	outcome, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if outcome.Status != domain.ScanAlreadyScanned {
		t.Fatalf("expected already_scanned, got %s", outcome.Status)
	}
	if outcome.Player.TotalPoints != 20 || outcome.Player.ScanCount != 1 {
		t.Fatalf("rescan changed the aggregate: %d points, %d scans",
			outcome.Player.TotalPoints, outcome.Player.ScanCount)
	}
}

func TestSubmitScanUnrecognizedToken(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())

	outcome, err := game.SubmitScan(context.Background(),
		submission("p1", "Nowhere Plaza_5", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanUnrecognized {
		t.Fatalf("expected unrecognized, got %s", outcome.Status)
	}
	if _, err := store.GetPlayer(context.Background(), "p1"); err != domain.ErrPlayerNotFound {
		t.Fatalf("unrecognized scan must not create the player, got err=%v", err)
	}
}

func TestSubmitScanOutsidePlayArea(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())

	// Roughly 20km north of the play area center.
	outcome, err := game.SubmitScan(context.Background(),
		submission("p1", "Patan Durbar Square_20", playLat+0.18, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanOutsidePlayArea {
		t.Fatalf("expected outside_play_area, got %s", outcome.Status)
	}
	if outcome.DistanceMeters <= 15000 {
		t.Fatalf("expected distance beyond the fence, got %.0f", outcome.DistanceMeters)
	}
}

func TestSubmitScanTooFarFromSite(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())

	// Inside the play area but ~3km from the site with a 2km site fence.
	outcome, err := game.SubmitScan(context.Background(),
		submission("p1", "Patan Durbar Square_20", playLat+0.027, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanTooFarFromSite {
		t.Fatalf("expected too_far_from_site, got %s", outcome.Status)
	}
	if outcome.DistanceMeters <= 2000 {
		t.Fatalf("expected distance beyond the site fence, got %.0f", outcome.DistanceMeters)
	}
}

func TestSubmitScanMissingLocationFailsClosed(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())

	outcome, err := game.SubmitScan(context.Background(), domain.ScanSubmission{
		PlayerID: "p1",
		Username: "p1",
		Token:    "Patan Durbar Square_20",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanOutsidePlayArea {
		t.Fatalf("missing location must fail closed, got %s", outcome.Status)
	}
}

type fakeCache struct {
	scores    map[string]float64
	positions map[string]domain.Position
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		scores:    make(map[string]float64),
		positions: make(map[string]domain.Position),
	}
}

func (c *fakeCache) SetScore(ctx context.Context, playerID string, composite float64) error {
	c.scores[playerID] = composite
	return nil
}

func (c *fakeCache) BatchSetScores(ctx context.Context, scores map[string]float64) error {
	for id, score := range scores {
		c.scores[id] = score
	}
	return nil
}

func (c *fakeCache) SetPlayerInfo(ctx context.Context, playerID, username string, scanCount int64) error {
	return nil
}

func (c *fakeCache) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (c *fakeCache) Count(ctx context.Context) (int64, error) {
	return int64(len(c.scores)), nil
}

func (c *fakeCache) SetPosition(ctx context.Context, playerID string, lat, lng float64) error {
	c.positions[playerID] = domain.Position{Latitude: lat, Longitude: lng}
	return nil
}

func (c *fakeCache) GetPosition(ctx context.Context, playerID string) (*domain.Position, error) {
	pos, ok := c.positions[playerID]
	if !ok {
		return nil, domain.ErrPositionUnknown
	}
	return &pos, nil
}

func TestSubmitScanUsesLastKnownPosition(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	cache := newFakeCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	game := NewGame(store, cache, testConfig(), logger)
	ctx := context.Background()

	if err := game.UpdatePosition(ctx, "p1", playLat, playLng); err != nil {
		t.Fatalf("position update failed: %v", err)
	}

	outcome, err := game.SubmitScan(ctx, domain.ScanSubmission{
		PlayerID: "p1",
		Username: "p1",
		Token:    "Patan Durbar Square_20",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanCredited {
		t.Fatalf("expected credited via cached position, got %s", outcome.Status)
	}
	if _, ok := cache.scores["p1"]; !ok {
		t.Fatalf("credited scan did not update the score cache")
	}
}

func TestSubmitScanPerSitePrize(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	store.AddPrizeCode(domain.PrizeCode{ID: "c1", Code: "WIN-1", SiteID: "s1", SiteName: "Patan Durbar Square"})
	game := testGame(t, store, testConfig())
	ctx := context.Background()

	outcome, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Prize == nil || !outcome.Prize.Allocated {
		t.Fatalf("expected a prize allocation, got %+v", outcome.Prize)
	}
	if outcome.Claim == nil || outcome.Claim.PrizeCode != "WIN-1" {
		t.Fatalf("expected claim carrying WIN-1, got %+v", outcome.Claim)
	}
	if !outcome.Claim.HasPrize() {
		t.Fatalf("claim should carry a prize")
	}

	// Pool exhausted: the next player still gets a notification, without a code.
	outcome, err = game.SubmitScan(ctx, submission("p2", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Status != domain.ScanCredited {
		t.Fatalf("exhausted pool must not block crediting, got %s", outcome.Status)
	}
	if outcome.Prize == nil || outcome.Prize.Allocated {
		t.Fatalf("expected no allocation for p2, got %+v", outcome.Prize)
	}
	if outcome.Claim == nil || outcome.Claim.HasPrize() {
		t.Fatalf("expected a no-prize notification, got %+v", outcome.Claim)
	}
}

func TestSubmitScanCompletionPolicy(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	seedSite(store, "s2", "Boudhanath Stupa", 30, playLat+0.005, playLng)
	store.AddPrizeCode(domain.PrizeCode{ID: "c1", Code: "GRAND-1"})

	cfg := testConfig()
	cfg.PrizePolicy = string(domain.PrizePolicyCompletion)
	cfg.CompletionThreshold = 2
	game := testGame(t, store, cfg)
	ctx := context.Background()

	outcome, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Prize == nil || outcome.Prize.Allocated {
		t.Fatalf("first scan should not allocate under completion policy")
	}
	if outcome.Claim == nil || outcome.Claim.Message != "Scanned 1 of 2 sites" {
		t.Fatalf("expected progress notification, got %+v", outcome.Claim)
	}

	outcome, err = game.SubmitScan(ctx, submission("p1", "Boudhanath Stupa_30", playLat+0.005, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Prize == nil || !outcome.Prize.Allocated {
		t.Fatalf("completing the hunt should allocate, got %+v", outcome.Prize)
	}
	if outcome.Claim == nil || outcome.Claim.PrizeCode != "GRAND-1" {
		t.Fatalf("expected completion claim with GRAND-1, got %+v", outcome.Claim)
	}

	// Progress notifications are superseded; the prize claim survives.
	claims, err := game.Claims(ctx, "p1")
	if err != nil {
		t.Fatalf("claims failed: %v", err)
	}
	if len(claims) != 1 || claims[0].PrizeCode != "GRAND-1" {
		t.Fatalf("expected only the prize claim to remain, got %d claims", len(claims))
	}
}

func TestSubmitScanCompletionPrizeOncePerPlayer(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	seedSite(store, "s2", "Boudhanath Stupa", 30, playLat+0.005, playLng)
	store.AddPrizeCode(domain.PrizeCode{ID: "c1", Code: "GRAND-1"})
	store.AddPrizeCode(domain.PrizeCode{ID: "c2", Code: "GRAND-2"})

	cfg := testConfig()
	cfg.PrizePolicy = string(domain.PrizePolicyCompletion)
	cfg.CompletionThreshold = 1
	game := testGame(t, store, cfg)
	ctx := context.Background()

	outcome, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Prize == nil || !outcome.Prize.Allocated {
		t.Fatalf("threshold reached, expected an allocation")
	}

	outcome, err = game.SubmitScan(ctx, submission("p1", "Boudhanath Stupa_30", playLat+0.005, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if outcome.Prize != nil && outcome.Prize.Allocated {
		t.Fatalf("player won a second completion prize")
	}
}

func TestAcknowledgeClaimTwice(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	store.AddPrizeCode(domain.PrizeCode{ID: "c1", Code: "WIN-1", SiteID: "s1", SiteName: "Patan Durbar Square"})
	game := testGame(t, store, testConfig())
	ctx := context.Background()

	outcome, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	first, err := game.AcknowledgeClaim(ctx, outcome.Claim.ID)
	if err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	if !first.Claimed {
		t.Fatalf("claim not marked after ack")
	}
	second, err := game.AcknowledgeClaim(ctx, outcome.Claim.ID)
	if err != nil {
		t.Fatalf("second ack failed: %v", err)
	}
	if !second.ClaimedAt.Equal(*first.ClaimedAt) {
		t.Fatalf("second ack changed the claimed timestamp")
	}

	if _, err := game.AcknowledgeClaim(ctx, ""); err != domain.ErrInvalidRequest {
		t.Fatalf("empty claim ID should be rejected, got %v", err)
	}
}

func TestTopClampsLimit(t *testing.T) {
	store := memory.NewStore()
	cfg := testConfig()
	cfg.DefaultLimit = 2
	cfg.MaxLimit = 3
	game := testGame(t, store, cfg)
	ctx := context.Background()

	names := []string{"Patan Durbar Square", "Boudhanath Stupa", "Swayambhunath", "Pashupatinath", "Garden of Dreams"}
	for i, name := range names {
		seedSite(store, name, name, int64(10*(i+1)), playLat, playLng)
		sub := submission("p"+name, name+"_10", playLat, playLng)
		if _, err := game.SubmitScan(ctx, sub); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	entries, err := game.Top(ctx, 0)
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected default limit of 2, got %d", len(entries))
	}

	entries, err = game.Top(ctx, 50)
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected max limit of 3, got %d", len(entries))
	}
}

func TestCheckGeofence(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	game := testGame(t, store, testConfig())
	ctx := context.Background()

	inside, dist, err := game.CheckGeofence(ctx, playLat, playLng, "")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !inside || dist != 0 {
		t.Fatalf("center should be inside at distance 0, got inside=%v dist=%.0f", inside, dist)
	}

	inside, _, err = game.CheckGeofence(ctx, playLat+0.027, playLng, "s1")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if inside {
		t.Fatalf("3km out should be outside a 2km site fence")
	}

	if _, _, err := game.CheckGeofence(ctx, playLat, playLng, "missing"); err != domain.ErrSiteNotFound {
		t.Fatalf("expected ErrSiteNotFound, got %v", err)
	}
}

func TestPlayerRank(t *testing.T) {
	store := memory.NewStore()
	seedSite(store, "s1", "Patan Durbar Square", 20, playLat, playLng)
	seedSite(store, "s2", "Boudhanath Stupa", 50, playLat, playLng)
	game := testGame(t, store, testConfig())
	ctx := context.Background()

	if _, err := game.SubmitScan(ctx, submission("p1", "Patan Durbar Square_20", playLat, playLng)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := game.SubmitScan(ctx, submission("p2", "Boudhanath Stupa_50", playLat, playLng)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	entry, err := game.PlayerRank(ctx, "p1")
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if entry.Rank != 2 || entry.Points != 20 {
		t.Fatalf("expected rank 2 with 20 points, got rank %d with %d", entry.Rank, entry.Points)
	}

	if _, err := game.PlayerRank(ctx, "ghost"); err != domain.ErrPlayerNotFound {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}
