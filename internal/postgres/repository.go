package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scanquest/internal/config"
	"github.com/scanquest/internal/domain"
)

// Repository provides PostgreSQL-based data access. It is the authoritative
// store: the scan ledger, player aggregates, prize code pool and claim
// notifications all live here.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sites (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			points BIGINT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'Active',
			type VARCHAR(50) DEFAULT '',
			description TEXT DEFAULT '',
			picture TEXT DEFAULT '',
			reward_link TEXT DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			avatar_url TEXT DEFAULT '',
			total_points BIGINT NOT NULL DEFAULT 0,
			scan_count BIGINT NOT NULL DEFAULT 0,
			first_scan_at TIMESTAMPTZ,
			last_scan_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS scan_records (
			id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL REFERENCES players(id),
			site_id VARCHAR(64) NOT NULL REFERENCES sites(id),
			site_name VARCHAR(255) NOT NULL,
			points BIGINT NOT NULL,
			raw_token TEXT NOT NULL,
			scanned_at TIMESTAMPTZ NOT NULL,
			UNIQUE (player_id, site_id)
		)`,
		`CREATE TABLE IF NOT EXISTS prize_codes (
			id VARCHAR(64) PRIMARY KEY,
			code VARCHAR(255) NOT NULL,
			site_id VARCHAR(64) DEFAULT '',
			site_name VARCHAR(255) DEFAULT '',
			used BOOLEAN NOT NULL DEFAULT FALSE,
			claimed_by VARCHAR(64) DEFAULT '',
			claimed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS claim_notifications (
			id VARCHAR(64) PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			site_id VARCHAR(64) DEFAULT '',
			prize_code VARCHAR(255) DEFAULT '',
			message TEXT NOT NULL,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			claimed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_records_player ON scan_records(player_id, scanned_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_prize_codes_available ON prize_codes(site_id) WHERE used = FALSE`,
		`CREATE INDEX IF NOT EXISTS idx_claims_player ON claim_notifications(player_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_players_points ON players(total_points DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// UpsertSite creates or updates a catalog entry
func (r *Repository) UpsertSite(ctx context.Context, site *domain.Site) error {
	query := `
		INSERT INTO sites (id, name, latitude, longitude, points, status, type, description, picture, reward_link, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (id)
		DO UPDATE SET name = $2, latitude = $3, longitude = $4, points = $5, status = $6,
			type = $7, description = $8, picture = $9, reward_link = $10, updated_at = $11
	`
	_, err := r.pool.Exec(ctx, query,
		site.ID, site.Name, site.Latitude, site.Longitude, site.Points,
		string(site.Status), site.Type, site.Description, site.Picture,
		site.RewardLink, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("upserting site: %w", err)
	}
	return nil
}

// ListActiveSites retrieves the scannable catalog, ordered by name. The
// status filter is case-folded to match domain.Site.Scannable.
func (r *Repository) ListActiveSites(ctx context.Context) ([]domain.Site, error) {
	query := `
		SELECT id, name, latitude, longitude, points, status, type, description, picture, reward_link, created_at, updated_at
		FROM sites
		WHERE lower(status) = lower($1)
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query, string(domain.SiteStatusActive))
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		var site domain.Site
		err := rows.Scan(
			&site.ID, &site.Name, &site.Latitude, &site.Longitude, &site.Points,
			&site.Status, &site.Type, &site.Description, &site.Picture,
			&site.RewardLink, &site.CreatedAt, &site.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// GetSite retrieves a site by ID
func (r *Repository) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	query := `
		SELECT id, name, latitude, longitude, points, status, type, description, picture, reward_link, created_at, updated_at
		FROM sites
		WHERE id = $1
	`
	var site domain.Site
	err := r.pool.QueryRow(ctx, query, siteID).Scan(
		&site.ID, &site.Name, &site.Latitude, &site.Longitude, &site.Points,
		&site.Status, &site.Type, &site.Description, &site.Picture,
		&site.RewardLink, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSiteNotFound
		}
		return nil, fmt.Errorf("getting site: %w", err)
	}
	return &site, nil
}

// GetPlayer retrieves a player's aggregate state
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `
		SELECT id, username, avatar_url, total_points, scan_count, first_scan_at, last_scan_at, updated_at
		FROM players
		WHERE id = $1
	`
	var player domain.Player
	err := r.pool.QueryRow(ctx, query, playerID).Scan(
		&player.ID, &player.Username, &player.AvatarURL, &player.TotalPoints,
		&player.ScanCount, &player.FirstScanAt, &player.LastScanAt, &player.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &player, nil
}

// EnsurePlayer creates the player row on first sight and refreshes the username
func (r *Repository) EnsurePlayer(ctx context.Context, playerID, username string) (*domain.Player, error) {
	if username == "" {
		username = playerID
	}
	query := `
		INSERT INTO players (id, username, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id)
		DO UPDATE SET username = $2, updated_at = $3
		RETURNING id, username, avatar_url, total_points, scan_count, first_scan_at, last_scan_at, updated_at
	`
	var player domain.Player
	err := r.pool.QueryRow(ctx, query, playerID, username, time.Now()).Scan(
		&player.ID, &player.Username, &player.AvatarURL, &player.TotalPoints,
		&player.ScanCount, &player.FirstScanAt, &player.LastScanAt, &player.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring player: %w", err)
	}
	return &player, nil
}

// ListPlayers retrieves all players
func (r *Repository) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	query := `
		SELECT id, username, avatar_url, total_points, scan_count, first_scan_at, last_scan_at, updated_at
		FROM players
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var player domain.Player
		err := rows.Scan(
			&player.ID, &player.Username, &player.AvatarURL, &player.TotalPoints,
			&player.ScanCount, &player.FirstScanAt, &player.LastScanAt, &player.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		players = append(players, player)
	}
	return players, nil
}

// HasScanned reports whether a scan record exists for the pair
func (r *Repository) HasScanned(ctx context.Context, playerID, siteID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM scan_records WHERE player_id = $1 AND site_id = $2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, playerID, siteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking scan record: %w", err)
	}
	return exists, nil
}

// InsertScan appends the scan record and applies the aggregate update in one
// transaction. The UNIQUE (player_id, site_id) constraint arbitrates
// concurrent duplicates: the loser's insert affects zero rows and the
// aggregate is left untouched.
func (r *Repository) InsertScan(ctx context.Context, rec *domain.ScanRecord) (bool, *domain.Player, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO scan_records (id, player_id, site_id, site_name, points, raw_token, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id, site_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insert,
		rec.ID, rec.PlayerID, rec.SiteID, rec.SiteName, rec.Points, rec.RawToken, rec.ScannedAt,
	)
	if err != nil {
		return false, nil, fmt.Errorf("inserting scan: %w", err)
	}

	if tag.RowsAffected() == 0 {
		player, err := r.GetPlayer(ctx, rec.PlayerID)
		if err != nil {
			return false, nil, err
		}
		return false, player, nil
	}

	update := `
		UPDATE players
		SET total_points = total_points + $2,
			scan_count = scan_count + 1,
			first_scan_at = COALESCE(first_scan_at, $3),
			last_scan_at = $3,
			updated_at = $3
		WHERE id = $1
		RETURNING id, username, avatar_url, total_points, scan_count, first_scan_at, last_scan_at, updated_at
	`
	var player domain.Player
	err = tx.QueryRow(ctx, update, rec.PlayerID, rec.Points, rec.ScannedAt).Scan(
		&player.ID, &player.Username, &player.AvatarURL, &player.TotalPoints,
		&player.ScanCount, &player.FirstScanAt, &player.LastScanAt, &player.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil, domain.ErrPlayerNotFound
		}
		return false, nil, fmt.Errorf("updating player aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, nil, fmt.Errorf("committing scan: %w", err)
	}
	return true, &player, nil
}

// ListScans retrieves a player's scan history, most recent first
func (r *Repository) ListScans(ctx context.Context, playerID string) ([]domain.ScanRecord, error) {
	query := `
		SELECT id, player_id, site_id, site_name, points, raw_token, scanned_at
		FROM scan_records
		WHERE player_id = $1
		ORDER BY scanned_at DESC
	`
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var records []domain.ScanRecord
	for rows.Next() {
		var rec domain.ScanRecord
		err := rows.Scan(&rec.ID, &rec.PlayerID, &rec.SiteID, &rec.SiteName,
			&rec.Points, &rec.RawToken, &rec.ScannedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// AddPrizeCode loads a code into the pool
func (r *Repository) AddPrizeCode(ctx context.Context, code *domain.PrizeCode) error {
	query := `
		INSERT INTO prize_codes (id, code, site_id, site_name, used)
		VALUES ($1, $2, $3, $4, FALSE)
	`
	_, err := r.pool.Exec(ctx, query, code.ID, code.Code, code.SiteID, code.SiteName)
	if err != nil {
		return fmt.Errorf("adding prize code: %w", err)
	}
	return nil
}

// AllocatePrize claims one unused code matching the site binding with a
// single conditional update. FOR UPDATE SKIP LOCKED lets concurrent callers
// race over the pool without lock waits while still handing each code to at
// most one winner; (nil, nil) means the pool is exhausted.
func (r *Repository) AllocatePrize(ctx context.Context, playerID, siteID, siteName string, at time.Time) (*domain.PrizeCode, error) {
	query := `
		UPDATE prize_codes
		SET used = TRUE, claimed_by = $1, claimed_at = $2
		WHERE id = (
			SELECT id FROM prize_codes
			WHERE used = FALSE
			  AND (
				($3 = '' AND $4 = '' AND site_id = '' AND site_name = '')
				OR ($3 <> '' AND site_id = $3)
				OR ($4 <> '' AND lower(site_name) = lower($4))
			  )
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, code, site_id, site_name, used, claimed_by, claimed_at
	`
	var code domain.PrizeCode
	err := r.pool.QueryRow(ctx, query, playerID, at, siteID, siteName).Scan(
		&code.ID, &code.Code, &code.SiteID, &code.SiteName,
		&code.Used, &code.ClaimedBy, &code.ClaimedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("allocating prize code: %w", err)
	}
	return &code, nil
}

// SaveClaim stores a notification, superseding any pending unclaimed one for
// the same (player, site)
func (r *Repository) SaveClaim(ctx context.Context, claim *domain.ClaimNotification) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	del := `DELETE FROM claim_notifications WHERE player_id = $1 AND site_id = $2 AND claimed = FALSE`
	if _, err := tx.Exec(ctx, del, claim.PlayerID, claim.SiteID); err != nil {
		return fmt.Errorf("superseding claims: %w", err)
	}

	insert := `
		INSERT INTO claim_notifications (id, player_id, site_id, prize_code, message, claimed, created_at, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, insert,
		claim.ID, claim.PlayerID, claim.SiteID, claim.PrizeCode,
		claim.Message, claim.Claimed, claim.CreatedAt, claim.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("saving claim: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing claim: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim notification by ID
func (r *Repository) GetClaim(ctx context.Context, claimID string) (*domain.ClaimNotification, error) {
	query := `
		SELECT id, player_id, site_id, prize_code, message, claimed, created_at, claimed_at
		FROM claim_notifications
		WHERE id = $1
	`
	var claim domain.ClaimNotification
	err := r.pool.QueryRow(ctx, query, claimID).Scan(
		&claim.ID, &claim.PlayerID, &claim.SiteID, &claim.PrizeCode,
		&claim.Message, &claim.Claimed, &claim.CreatedAt, &claim.ClaimedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClaimNotFound
		}
		return nil, fmt.Errorf("getting claim: %w", err)
	}
	return &claim, nil
}

// ListClaims retrieves a player's claim notifications, newest first
func (r *Repository) ListClaims(ctx context.Context, playerID string) ([]domain.ClaimNotification, error) {
	query := `
		SELECT id, player_id, site_id, prize_code, message, claimed, created_at, claimed_at
		FROM claim_notifications
		WHERE player_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.ClaimNotification
	for rows.Next() {
		var claim domain.ClaimNotification
		err := rows.Scan(
			&claim.ID, &claim.PlayerID, &claim.SiteID, &claim.PrizeCode,
			&claim.Message, &claim.Claimed, &claim.CreatedAt, &claim.ClaimedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// AcknowledgeClaim idempotently marks a claim as claimed. The conditional
// update leaves an already-claimed row untouched, so a retry observes the
// original claimed_at.
func (r *Repository) AcknowledgeClaim(ctx context.Context, claimID string, at time.Time) (*domain.ClaimNotification, error) {
	query := `UPDATE claim_notifications SET claimed = TRUE, claimed_at = $2 WHERE id = $1 AND claimed = FALSE`
	if _, err := r.pool.Exec(ctx, query, claimID, at); err != nil {
		return nil, fmt.Errorf("acknowledging claim: %w", err)
	}
	return r.GetClaim(ctx, claimID)
}

// RebuildPlayerAggregates recomputes every player's aggregate fields from the
// scan ledger, repairing drift. Returns the number of players repaired.
func (r *Repository) RebuildPlayerAggregates(ctx context.Context) (int64, error) {
	query := `
		UPDATE players p
		SET total_points = agg.points,
			scan_count = agg.scans,
			first_scan_at = agg.first_at,
			last_scan_at = agg.last_at
		FROM (
			SELECT player_id,
				   COALESCE(SUM(points), 0) AS points,
				   COUNT(*) AS scans,
				   MIN(scanned_at) AS first_at,
				   MAX(scanned_at) AS last_at
			FROM scan_records
			GROUP BY player_id
		) agg
		WHERE p.id = agg.player_id
		  AND (p.total_points <> agg.points
			OR p.scan_count <> agg.scans
			OR p.first_scan_at IS DISTINCT FROM agg.first_at
			OR p.last_scan_at IS DISTINCT FROM agg.last_at)
	`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("rebuilding aggregates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AllScores retrieves every player's composite leaderboard score (for cache
// reconciliation)
func (r *Repository) AllScores(ctx context.Context) (map[string]float64, error) {
	players, err := r.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(players))
	for i := range players {
		scores[players[i].ID] = domain.CompositeScore(&players[i])
	}
	return scores, nil
}
