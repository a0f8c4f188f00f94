// Package memory provides a mutex-guarded in-memory store implementing the
// same contract as the postgres store. It backs tests and single-node
// development; the lock gives it the same conditional-update guarantee the
// database enforces with row locking.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/scanquest/internal/domain"
	"github.com/scanquest/internal/token"
)

type scanKey struct {
	playerID string
	siteID   string
}

// Store is an in-memory implementation of the service store contract
type Store struct {
	mu      sync.Mutex
	sites   map[string]domain.Site
	players map[string]domain.Player
	scans   map[scanKey]domain.ScanRecord
	prizes  map[string]domain.PrizeCode
	claims  map[string]domain.ClaimNotification
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		sites:   make(map[string]domain.Site),
		players: make(map[string]domain.Player),
		scans:   make(map[scanKey]domain.ScanRecord),
		prizes:  make(map[string]domain.PrizeCode),
		claims:  make(map[string]domain.ClaimNotification),
	}
}

// AddSite seeds a catalog entry
func (s *Store) AddSite(site domain.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.ID] = site
}

// AddPrizeCode seeds a prize code
func (s *Store) AddPrizeCode(code domain.PrizeCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prizes[code.ID] = code
}

// ListActiveSites returns the scannable catalog, ordered by name
func (s *Store) ListActiveSites(ctx context.Context) ([]domain.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sites []domain.Site
	for _, site := range s.sites {
		if site.Scannable() {
			sites = append(sites, site)
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites, nil
}

// GetSite returns a site by ID
func (s *Store) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	site, ok := s.sites[siteID]
	if !ok {
		return nil, domain.ErrSiteNotFound
	}
	return &site, nil
}

// GetPlayer returns a player by ID
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return &player, nil
}

// EnsurePlayer creates the player on first sight and refreshes the username
func (s *Store) EnsurePlayer(ctx context.Context, playerID, username string) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		player = domain.Player{ID: playerID, Username: username, UpdatedAt: time.Now()}
	}
	if username != "" {
		player.Username = username
	}
	if player.Username == "" {
		player.Username = playerID
	}
	s.players[playerID] = player
	return &player, nil
}

// ListPlayers returns a snapshot of all players
func (s *Store) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	return players, nil
}

// HasScanned reports whether a scan record exists for the pair
func (s *Store) HasScanned(ctx context.Context, playerID, siteID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.scans[scanKey{playerID, siteID}]
	return ok, nil
}

// InsertScan appends the record and updates the player aggregate under one
// lock; a second record for the same (player, site) pair is refused.
func (s *Store) InsertScan(ctx context.Context, rec *domain.ScanRecord) (bool, *domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scanKey{rec.PlayerID, rec.SiteID}
	if _, exists := s.scans[key]; exists {
		player := s.players[rec.PlayerID]
		return false, &player, nil
	}
	s.scans[key] = *rec

	player, ok := s.players[rec.PlayerID]
	if !ok {
		player = domain.Player{ID: rec.PlayerID, Username: rec.PlayerID}
	}
	player.TotalPoints += rec.Points
	player.ScanCount++
	if player.FirstScanAt == nil {
		first := rec.ScannedAt
		player.FirstScanAt = &first
	}
	last := rec.ScannedAt
	player.LastScanAt = &last
	player.UpdatedAt = rec.ScannedAt
	s.players[rec.PlayerID] = player

	return true, &player, nil
}

// ListScans returns a player's scan history, most recent first
func (s *Store) ListScans(ctx context.Context, playerID string) ([]domain.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []domain.ScanRecord
	for key, rec := range s.scans {
		if key.playerID == playerID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ScannedAt.After(records[j].ScannedAt)
	})
	return records, nil
}

// AllocatePrize claims one unused code matching the binding. The check and
// the flip of used happen under the same lock, so a single remaining code
// goes to exactly one caller.
func (s *Store) AllocatePrize(ctx context.Context, playerID, siteID, siteName string, at time.Time) (*domain.PrizeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := token.Normalize(siteName)
	ids := make([]string, 0, len(s.prizes))
	for id := range s.prizes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		code := s.prizes[id]
		if code.Used || !s.matches(&code, siteID, want) {
			continue
		}
		code.Used = true
		code.ClaimedBy = playerID
		claimedAt := at
		code.ClaimedAt = &claimedAt
		s.prizes[id] = code
		return &code, nil
	}
	return nil, nil
}

func (s *Store) matches(code *domain.PrizeCode, siteID, normName string) bool {
	if siteID == "" && normName == "" {
		return !code.Bound()
	}
	if siteID != "" && code.SiteID == siteID {
		return true
	}
	return normName != "" && token.Normalize(code.SiteName) == normName
}

// SaveClaim stores a notification, superseding any pending unclaimed one
// for the same (player, site)
func (s *Store) SaveClaim(ctx context.Context, claim *domain.ClaimNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.claims {
		if existing.PlayerID == claim.PlayerID && existing.SiteID == claim.SiteID && !existing.Claimed {
			delete(s.claims, id)
		}
	}
	s.claims[claim.ID] = *claim
	return nil
}

// GetClaim returns a claim notification by ID
func (s *Store) GetClaim(ctx context.Context, claimID string) (*domain.ClaimNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimID]
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	return &claim, nil
}

// ListClaims returns a player's claim notifications, newest first
func (s *Store) ListClaims(ctx context.Context, playerID string) ([]domain.ClaimNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claims []domain.ClaimNotification
	for _, claim := range s.claims {
		if claim.PlayerID == playerID {
			claims = append(claims, claim)
		}
	}
	sort.Slice(claims, func(i, j int) bool {
		return claims[i].CreatedAt.After(claims[j].CreatedAt)
	})
	return claims, nil
}

// AcknowledgeClaim idempotently marks a claim as claimed
func (s *Store) AcknowledgeClaim(ctx context.Context, claimID string, at time.Time) (*domain.ClaimNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.claims[claimID]
	if !ok {
		return nil, domain.ErrClaimNotFound
	}
	if !claim.Claimed {
		claim.Claimed = true
		claimedAt := at
		claim.ClaimedAt = &claimedAt
		s.claims[claimID] = claim
	}
	return &claim, nil
}

// RebuildPlayerAggregates recomputes every player's aggregate fields from
// the scan ledger, returning the number of players repaired.
func (s *Store) RebuildPlayerAggregates(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type agg struct {
		points int64
		count  int64
		first  time.Time
		last   time.Time
	}
	aggs := make(map[string]*agg)
	for key, rec := range s.scans {
		a, ok := aggs[key.playerID]
		if !ok {
			a = &agg{first: rec.ScannedAt, last: rec.ScannedAt}
			aggs[key.playerID] = a
		}
		a.points += rec.Points
		a.count++
		if rec.ScannedAt.Before(a.first) {
			a.first = rec.ScannedAt
		}
		if rec.ScannedAt.After(a.last) {
			a.last = rec.ScannedAt
		}
	}

	var repaired int64
	for id, a := range aggs {
		player, ok := s.players[id]
		if !ok {
			player = domain.Player{ID: id, Username: id}
		}
		if player.TotalPoints == a.points && player.ScanCount == a.count &&
			player.FirstScanAt != nil && player.FirstScanAt.Equal(a.first) &&
			player.LastScanAt != nil && player.LastScanAt.Equal(a.last) {
			continue
		}
		first, last := a.first, a.last
		player.TotalPoints = a.points
		player.ScanCount = a.count
		player.FirstScanAt = &first
		player.LastScanAt = &last
		s.players[id] = player
		repaired++
	}
	return repaired, nil
}

// AllScores returns every player's composite leaderboard score
func (s *Store) AllScores(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]float64, len(s.players))
	for id, player := range s.players {
		scores[id] = domain.CompositeScore(&player)
	}
	return scores, nil
}
