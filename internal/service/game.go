package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/scanquest/internal/config"
	"github.com/scanquest/internal/domain"
	"github.com/scanquest/internal/geo"
	"github.com/scanquest/internal/metrics"
	"github.com/scanquest/internal/token"
)

// Game orchestrates the scan-to-reward pipeline: token decoding, geofence
// validation, the scan ledger, score aggregation, leaderboard derivation,
// prize allocation and the claim workflow.
type Game struct {
	store    Store
	cache    ScoreCache
	hub      Broadcaster
	cfg      *config.GameConfig
	logger   *slog.Logger
	playArea geo.Fence
	now      func() time.Time
}

// NewGame creates a new game service. The cache may be nil.
func NewGame(store Store, cache ScoreCache, cfg *config.GameConfig, logger *slog.Logger) *Game {
	return &Game{
		store:  store,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		playArea: geo.Fence{
			Center:       geo.Point{Lat: cfg.PlayAreaLat, Lng: cfg.PlayAreaLng},
			RadiusMeters: cfg.PlayAreaRadiusM,
		},
		now: time.Now,
	}
}

// SetHub attaches a broadcaster for live updates
func (g *Game) SetHub(hub Broadcaster) {
	g.hub = hub
}

// Sites returns the active site catalog
func (g *Game) Sites(ctx context.Context) ([]domain.Site, error) {
	return g.store.ListActiveSites(ctx)
}

// Site returns a single site by ID
func (g *Game) Site(ctx context.Context, siteID string) (*domain.Site, error) {
	return g.store.GetSite(ctx, siteID)
}

// DecodeToken resolves a raw scanner payload against the active catalog
func (g *Game) DecodeToken(ctx context.Context, raw string) (token.Result, error) {
	sites, err := g.store.ListActiveSites(ctx)
	if err != nil {
		return token.Result{}, fmt.Errorf("listing sites: %w", err)
	}
	return token.Resolve(sites, raw), nil
}

// CheckGeofence reports whether a coordinate is inside the play area, or,
// when siteID is given, inside the site's proximity fence. The distance to
// the fence center is returned either way.
func (g *Game) CheckGeofence(ctx context.Context, lat, lng float64, siteID string) (bool, float64, error) {
	fence := g.playArea
	if siteID != "" {
		site, err := g.store.GetSite(ctx, siteID)
		if err != nil {
			return false, 0, err
		}
		fence = g.siteFence(site)
	}
	if !geo.ValidCoordinate(lat, lng) {
		return false, 0, nil
	}
	return fence.Contains(lat, lng), fence.DistanceTo(lat, lng), nil
}

func (g *Game) siteFence(site *domain.Site) geo.Fence {
	radius := g.cfg.SiteRadiusM
	if radius <= 0 {
		radius = g.cfg.PlayAreaRadiusM
	}
	return geo.Fence{
		Center:       geo.Point{Lat: site.Latitude, Lng: site.Longitude},
		RadiusMeters: radius,
	}
}

// HasScanned reports whether the player has already been credited for a site
func (g *Game) HasScanned(ctx context.Context, playerID, siteID string) (bool, error) {
	return g.store.HasScanned(ctx, playerID, siteID)
}

// SubmitScan runs one scan attempt through the full pipeline and returns a
// tagged outcome. Only infrastructure faults surface as errors; every
// business rejection is an outcome status with no state mutated.
func (g *Game) SubmitScan(ctx context.Context, sub domain.ScanSubmission) (*domain.ScanOutcome, error) {
	if sub.PlayerID == "" || sub.Token == "" {
		return nil, domain.ErrInvalidRequest
	}

	sites, err := g.store.ListActiveSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}

	res := token.Resolve(sites, sub.Token)
	if !res.Recognized {
		g.logger.Info("unrecognized token", "player_id", sub.PlayerID, "token", sub.Token)
		return g.finish(&domain.ScanOutcome{Status: domain.ScanUnrecognized}), nil
	}
	site := res.Site

	lat, lng, located := g.resolveLocation(ctx, sub)
	if !located {
		return g.finish(&domain.ScanOutcome{Status: domain.ScanOutsidePlayArea, Site: site}), nil
	}
	if !g.playArea.Contains(lat, lng) {
		return g.finish(&domain.ScanOutcome{
			Status:         domain.ScanOutsidePlayArea,
			Site:           site,
			DistanceMeters: g.playArea.DistanceTo(lat, lng),
		}), nil
	}
	if g.cfg.SiteRadiusM > 0 {
		dist := geo.Distance(lat, lng, site.Latitude, site.Longitude)
		if dist > g.cfg.SiteRadiusM {
			return g.finish(&domain.ScanOutcome{
				Status:         domain.ScanTooFarFromSite,
				Site:           site,
				DistanceMeters: dist,
			}), nil
		}
	}

	if _, err := g.store.EnsurePlayer(ctx, sub.PlayerID, sub.Username); err != nil {
		return nil, fmt.Errorf("ensuring player: %w", err)
	}

	now := g.now()
	rec := &domain.ScanRecord{
		ID:        uuid.New().String(),
		PlayerID:  sub.PlayerID,
		SiteID:    site.ID,
		SiteName:  token.CleanSiteName(site.Name),
		Points:    res.Points,
		RawToken:  sub.Token,
		ScannedAt: now,
	}

	credited, player, err := g.store.InsertScan(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("recording scan: %w", err)
	}
	if !credited {
		return g.finish(&domain.ScanOutcome{
			Status: domain.ScanAlreadyScanned,
			Site:   site,
			Player: player,
		}), nil
	}

	g.updateCache(ctx, player)

	outcome := &domain.ScanOutcome{
		Status: domain.ScanCredited,
		Site:   site,
		Record: rec,
		Player: player,
	}
	outcome.Prize, outcome.Claim = g.attemptPrize(ctx, player, site, len(sites), now)

	g.broadcast(ctx, player, site, rec, outcome.Claim)

	return g.finish(outcome), nil
}

// finish records the outcome metric and returns the outcome unchanged
func (g *Game) finish(outcome *domain.ScanOutcome) *domain.ScanOutcome {
	metrics.ScansTotal.WithLabelValues(string(outcome.Status)).Inc()
	return outcome
}

// resolveLocation picks the submitted coordinates, falling back to the
// player's last reported position. Without either the scan fails closed.
func (g *Game) resolveLocation(ctx context.Context, sub domain.ScanSubmission) (float64, float64, bool) {
	if sub.Latitude != nil && sub.Longitude != nil && geo.ValidCoordinate(*sub.Latitude, *sub.Longitude) {
		return *sub.Latitude, *sub.Longitude, true
	}
	if g.cache == nil {
		return 0, 0, false
	}
	pos, err := g.cache.GetPosition(ctx, sub.PlayerID)
	if err != nil {
		if !errors.Is(err, domain.ErrPositionUnknown) {
			g.logger.Warn("failed to read cached position", "player_id", sub.PlayerID, "error", err)
		}
		return 0, 0, false
	}
	return pos.Latitude, pos.Longitude, true
}

func (g *Game) updateCache(ctx context.Context, player *domain.Player) {
	if g.cache == nil {
		return
	}
	if err := g.cache.SetScore(ctx, player.ID, domain.CompositeScore(player)); err != nil {
		g.logger.Warn("failed to update score cache", "player_id", player.ID, "error", err)
	}
	if err := g.cache.SetPlayerInfo(ctx, player.ID, player.Username, player.ScanCount); err != nil {
		g.logger.Warn("failed to update player info cache", "player_id", player.ID, "error", err)
	}
}

// attemptPrize applies the configured prize policy after a credited scan.
// Allocation failures are logged and degrade to "no prize": the scan is
// already credited and must not be rolled back for a reward-side fault.
func (g *Game) attemptPrize(ctx context.Context, player *domain.Player, site *domain.Site, activeSites int, now time.Time) (*domain.AllocationOutcome, *domain.ClaimNotification) {
	switch domain.PrizePolicy(g.cfg.PrizePolicy) {
	case domain.PrizePolicyCompletion:
		return g.attemptCompletionPrize(ctx, player, activeSites, now)
	default:
		return g.attemptSitePrize(ctx, player, site, now)
	}
}

func (g *Game) attemptSitePrize(ctx context.Context, player *domain.Player, site *domain.Site, now time.Time) (*domain.AllocationOutcome, *domain.ClaimNotification) {
	code, err := g.store.AllocatePrize(ctx, player.ID, site.ID, token.CleanSiteName(site.Name), now)
	if err != nil {
		g.logger.Error("prize allocation failed", "player_id", player.ID, "site_id", site.ID, "error", err)
		return &domain.AllocationOutcome{}, nil
	}

	outcome := &domain.AllocationOutcome{Allocated: code != nil, Code: code}
	claim := &domain.ClaimNotification{
		ID:        uuid.New().String(),
		PlayerID:  player.ID,
		SiteID:    site.ID,
		CreatedAt: now,
	}
	if code != nil {
		metrics.PrizeAllocations.WithLabelValues("allocated").Inc()
		claim.PrizeCode = code.Code
		claim.Message = fmt.Sprintf("Prize unlocked at %s", site.Name)
	} else {
		metrics.PrizeAllocations.WithLabelValues("exhausted").Inc()
		claim.Message = fmt.Sprintf("All prizes at %s have been claimed", site.Name)
	}

	return outcome, g.saveClaim(ctx, claim)
}

func (g *Game) attemptCompletionPrize(ctx context.Context, player *domain.Player, activeSites int, now time.Time) (*domain.AllocationOutcome, *domain.ClaimNotification) {
	threshold := g.cfg.CompletionThreshold
	if threshold <= 0 {
		threshold = activeSites
	}

	if player.ScanCount < int64(threshold) {
		claim := &domain.ClaimNotification{
			ID:        uuid.New().String(),
			PlayerID:  player.ID,
			Message:   fmt.Sprintf("Scanned %d of %d sites", player.ScanCount, threshold),
			CreatedAt: now,
		}
		return &domain.AllocationOutcome{}, g.saveClaim(ctx, claim)
	}

	// One completion prize per player, ever.
	claims, err := g.store.ListClaims(ctx, player.ID)
	if err != nil {
		g.logger.Error("listing claims failed", "player_id", player.ID, "error", err)
		return &domain.AllocationOutcome{}, nil
	}
	for i := range claims {
		if claims[i].HasPrize() && claims[i].SiteID == "" {
			return &domain.AllocationOutcome{}, nil
		}
	}

	code, err := g.store.AllocatePrize(ctx, player.ID, "", "", now)
	if err != nil {
		g.logger.Error("completion prize allocation failed", "player_id", player.ID, "error", err)
		return &domain.AllocationOutcome{}, nil
	}

	outcome := &domain.AllocationOutcome{Allocated: code != nil, Code: code}
	claim := &domain.ClaimNotification{
		ID:        uuid.New().String(),
		PlayerID:  player.ID,
		CreatedAt: now,
	}
	if code != nil {
		metrics.PrizeAllocations.WithLabelValues("allocated").Inc()
		claim.PrizeCode = code.Code
		claim.Message = fmt.Sprintf("All %d sites scanned, completion prize unlocked", threshold)
	} else {
		metrics.PrizeAllocations.WithLabelValues("exhausted").Inc()
		claim.Message = "All completion prizes have been claimed"
	}

	return outcome, g.saveClaim(ctx, claim)
}

func (g *Game) saveClaim(ctx context.Context, claim *domain.ClaimNotification) *domain.ClaimNotification {
	if err := g.store.SaveClaim(ctx, claim); err != nil {
		g.logger.Error("saving claim failed", "player_id", claim.PlayerID, "error", err)
		return nil
	}
	return claim
}

func (g *Game) broadcast(ctx context.Context, player *domain.Player, site *domain.Site, rec *domain.ScanRecord, claim *domain.ClaimNotification) {
	if g.hub == nil {
		return
	}

	g.hub.BroadcastScan(player.ID, player.Username, site.ID, rec.SiteName, rec.Points)
	if claim != nil {
		g.hub.NotifyClaim(player.ID, claim)
	}

	entries, err := g.Leaderboard(ctx)
	if err != nil {
		g.logger.Warn("leaderboard broadcast skipped", "error", err)
		return
	}
	total := int64(len(entries))
	if len(entries) > 10 {
		entries = entries[:10]
	}
	g.hub.BroadcastLeaderboard(entries, total)
}

// Leaderboard re-derives the full ranked board from the player snapshot on
// every call; rank is never stored.
func (g *Game) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	players, err := g.store.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return domain.Rank(players), nil
}

// Top returns the first n leaderboard entries, preferring the realtime cache
// and falling back to a full derivation.
func (g *Game) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = g.cfg.DefaultLimit
	}
	if n > g.cfg.MaxLimit {
		n = g.cfg.MaxLimit
	}

	if g.cache != nil {
		entries, err := g.cache.TopN(ctx, n)
		if err == nil {
			return entries, nil
		}
		g.logger.Warn("leaderboard cache read failed, deriving from store", "error", err)
	}

	entries, err := g.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// PlayerRank returns a single player's leaderboard entry
func (g *Game) PlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error) {
	entries, err := g.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].PlayerID == playerID {
			return &entries[i], nil
		}
	}
	return nil, domain.ErrPlayerNotFound
}

// Player returns a player's aggregate state
func (g *Game) Player(ctx context.Context, playerID string) (*domain.Player, error) {
	return g.store.GetPlayer(ctx, playerID)
}

// PlayerScans returns a player's scan history
func (g *Game) PlayerScans(ctx context.Context, playerID string) ([]domain.ScanRecord, error) {
	return g.store.ListScans(ctx, playerID)
}

// Claims returns a player's claim notifications
func (g *Game) Claims(ctx context.Context, playerID string) ([]domain.ClaimNotification, error) {
	return g.store.ListClaims(ctx, playerID)
}

// AcknowledgeClaim marks a claim notification as claimed. Acknowledging a
// claim twice leaves the same end state as acknowledging it once.
func (g *Game) AcknowledgeClaim(ctx context.Context, claimID string) (*domain.ClaimNotification, error) {
	if claimID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return g.store.AcknowledgeClaim(ctx, claimID, g.now())
}

// UpdatePosition stores a player's last known location for geofence
// fallback. Without a cache the position is dropped.
func (g *Game) UpdatePosition(ctx context.Context, playerID string, lat, lng float64) error {
	if playerID == "" || !geo.ValidCoordinate(lat, lng) {
		return domain.ErrInvalidRequest
	}
	if g.cache == nil {
		return nil
	}
	return g.cache.SetPosition(ctx, playerID, lat, lng)
}
