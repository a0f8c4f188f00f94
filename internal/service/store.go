package service

import (
	"context"
	"time"

	"github.com/scanquest/internal/domain"
)

// Store is the persistence boundary for the scan-to-reward pipeline. The
// postgres implementation backs production; the memory implementation backs
// tests and single-node development. Implementations must uphold two
// invariants: at most one scan record per (player, site), and a prize code's
// used flag transitions false -> true at most once.
type Store interface {
	// Sites. The catalog is read-only to this service.
	ListActiveSites(ctx context.Context) ([]domain.Site, error)
	GetSite(ctx context.Context, siteID string) (*domain.Site, error)

	// Players.
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)
	EnsurePlayer(ctx context.Context, playerID, username string) (*domain.Player, error)
	ListPlayers(ctx context.Context) ([]domain.Player, error)

	// Scan ledger. InsertScan appends the record and applies the aggregate
	// update atomically; credited is false when a record for the
	// (player, site) pair already exists, in which case nothing is written.
	HasScanned(ctx context.Context, playerID, siteID string) (bool, error)
	InsertScan(ctx context.Context, rec *domain.ScanRecord) (credited bool, player *domain.Player, err error)
	ListScans(ctx context.Context, playerID string) ([]domain.ScanRecord, error)

	// Prize codes. AllocatePrize claims one unused code matching the site
	// binding (or an unbound code when both siteID and siteName are empty)
	// with a conditional update; it returns (nil, nil) when no code is
	// available, including when a concurrent caller won the last one.
	AllocatePrize(ctx context.Context, playerID, siteID, siteName string, at time.Time) (*domain.PrizeCode, error)

	// Claim notifications. SaveClaim supersedes any pending unclaimed
	// notification for the same (player, site). AcknowledgeClaim is
	// idempotent: acknowledging an already-claimed record is a no-op.
	SaveClaim(ctx context.Context, claim *domain.ClaimNotification) error
	GetClaim(ctx context.Context, claimID string) (*domain.ClaimNotification, error)
	ListClaims(ctx context.Context, playerID string) ([]domain.ClaimNotification, error)
	AcknowledgeClaim(ctx context.Context, claimID string, at time.Time) (*domain.ClaimNotification, error)
}

// ScoreCache is the optional realtime fast path for leaderboard reads and
// last-known player positions. A nil cache disables it; cache failures are
// never fatal to a scan.
type ScoreCache interface {
	SetScore(ctx context.Context, playerID string, composite float64) error
	BatchSetScores(ctx context.Context, scores map[string]float64) error
	SetPlayerInfo(ctx context.Context, playerID, username string, scanCount int64) error
	TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	Count(ctx context.Context) (int64, error)
	SetPosition(ctx context.Context, playerID string, lat, lng float64) error
	GetPosition(ctx context.Context, playerID string) (*domain.Position, error)
}

// Broadcaster pushes live events to connected clients. A nil broadcaster
// drops them.
type Broadcaster interface {
	BroadcastScan(playerID, username, siteID, siteName string, points int64)
	BroadcastLeaderboard(entries []domain.LeaderboardEntry, totalPlayers int64)
	NotifyClaim(playerID string, claim *domain.ClaimNotification)
}
