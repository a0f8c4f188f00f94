package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scanquest/internal/config"
	"github.com/scanquest/internal/domain"
)

// Cache provides the Redis-backed realtime leaderboard and player position
// tracking. Scores in the sorted set are composite values packing points and
// the elapsed-time tie-break; the postgres scan ledger stays authoritative
// and the reconciliation worker repairs any drift.
type Cache struct {
	client      *redis.Client
	logger      *slog.Logger
	positionTTL time.Duration
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, positionTTL time.Duration, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client:      client,
		logger:      logger,
		positionTTL: positionTTL,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

const leaderboardKey = "hunt:leaderboard"

// playerInfoKey returns the Redis key for the player info hash
func (c *Cache) playerInfoKey(playerID string) string {
	return fmt.Sprintf("hunt:player:%s:info", playerID)
}

// positionKey returns the Redis key for a player's last reported position
func (c *Cache) positionKey(playerID string) string {
	return fmt.Sprintf("hunt:player:%s:position", playerID)
}

// SetScore sets a player's composite score in the leaderboard
func (c *Cache) SetScore(ctx context.Context, playerID string, composite float64) error {
	err := c.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  composite,
		Member: playerID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting score: %w", err)
	}
	return nil
}

// BatchSetScores replaces many composite scores at once (for reconciliation)
func (c *Cache) BatchSetScores(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(scores))
	for playerID, composite := range scores {
		members = append(members, redis.Z{Score: composite, Member: playerID})
	}
	if err := c.client.ZAdd(ctx, leaderboardKey, members...).Err(); err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// SetPlayerInfo caches a player's display info and scan count
func (c *Cache) SetPlayerInfo(ctx context.Context, playerID, username string, scanCount int64) error {
	err := c.client.HSet(ctx, c.playerInfoKey(playerID),
		"id", playerID,
		"username", username,
		"scan_count", strconv.FormatInt(scanCount, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("setting player info: %w", err)
	}
	return nil
}

// playerInfo reads the cached display name and scan count, falling back to
// the player ID when the hash is missing
func (c *Cache) playerInfo(ctx context.Context, playerID string) (string, int64) {
	fields, err := c.client.HGetAll(ctx, c.playerInfoKey(playerID)).Result()
	if err != nil || len(fields) == 0 {
		return playerID, 0
	}
	username := fields["username"]
	if username == "" {
		username = playerID
	}
	scanCount, _ := strconv.ParseInt(fields["scan_count"], 10, 64)
	return username, scanCount
}

// TopN returns the top N leaderboard entries by composite score. Points and
// elapsed time come out of the composite so the entry shape matches the
// store-derived leaderboard, at minute granularity.
func (c *Cache) TopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		playerID := result.Member.(string)
		username, scanCount := c.playerInfo(ctx, playerID)
		minutes, ok := domain.ElapsedFromComposite(result.Score)
		entries[i] = domain.LeaderboardEntry{
			Rank:        int64(i + 1),
			PlayerID:    playerID,
			Username:    username,
			Points:      domain.PointsFromComposite(result.Score),
			ScanCount:   scanCount,
			ElapsedTime: domain.FormatElapsed(minutes, ok),
		}
	}
	return entries, nil
}

// Count returns the number of players on the leaderboard
func (c *Cache) Count(ctx context.Context) (int64, error) {
	count, err := c.client.ZCard(ctx, leaderboardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// AllScores returns every cached composite score (for reconciliation)
func (c *Cache) AllScores(ctx context.Context) (map[string]float64, error) {
	results, err := c.client.ZRangeWithScores(ctx, leaderboardKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("getting all scores: %w", err)
	}

	scores := make(map[string]float64, len(results))
	for _, result := range results {
		scores[result.Member.(string)] = result.Score
	}
	return scores, nil
}

// RemovePlayer removes a player from the leaderboard
func (c *Cache) RemovePlayer(ctx context.Context, playerID string) error {
	if err := c.client.ZRem(ctx, leaderboardKey, playerID).Err(); err != nil {
		return fmt.Errorf("removing player: %w", err)
	}
	return nil
}

// SetPosition stores a player's last reported location with a TTL; a stale
// position expires rather than granting geofence access later
func (c *Cache) SetPosition(ctx context.Context, playerID string, lat, lng float64) error {
	key := c.positionKey(playerID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key,
		"latitude", strconv.FormatFloat(lat, 'f', -1, 64),
		"longitude", strconv.FormatFloat(lng, 'f', -1, 64),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	if c.positionTTL > 0 {
		pipe.Expire(ctx, key, c.positionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting position: %w", err)
	}
	return nil
}

// GetPosition returns a player's last reported location, or
// domain.ErrPositionUnknown when none is cached
func (c *Cache) GetPosition(ctx context.Context, playerID string) (*domain.Position, error) {
	fields, err := c.client.HGetAll(ctx, c.positionKey(playerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPositionUnknown
		}
		return nil, fmt.Errorf("getting position: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrPositionUnknown
	}

	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return nil, fmt.Errorf("parsing longitude: %w", err)
	}

	pos := &domain.Position{Latitude: lat, Longitude: lng}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		pos.UpdatedAt = ts
	}
	return pos, nil
}
