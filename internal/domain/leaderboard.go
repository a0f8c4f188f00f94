package domain

import "sort"

// LeaderboardEntry is a derived, recomputable projection of a player's
// standing; it is never stored as authoritative state.
type LeaderboardEntry struct {
	Rank        int64  `json:"rank"`
	PlayerID    string `json:"player_id"`
	Username    string `json:"username,omitempty"`
	Points      int64  `json:"points"`
	ScanCount   int64  `json:"scan_count,omitempty"`
	ElapsedTime string `json:"elapsed_time,omitempty"`
}

// Rank produces the leaderboard order over a snapshot of players: points
// descending, ties broken by elapsed time ascending, players without a
// defined elapsed time last among ties, then player ID for determinism.
// The input slice is not modified.
func Rank(players []Player) []LeaderboardEntry {
	ranked := make([]Player, len(players))
	copy(ranked, players)

	sort.Slice(ranked, func(i, j int) bool {
		a, b := &ranked[i], &ranked[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		am, aok := a.ElapsedMinutes()
		bm, bok := b.ElapsedMinutes()
		if aok != bok {
			return aok
		}
		if aok && am != bm {
			return am < bm
		}
		return a.ID < b.ID
	})

	entries := make([]LeaderboardEntry, len(ranked))
	for i := range ranked {
		p := &ranked[i]
		entries[i] = LeaderboardEntry{
			Rank:        int64(i + 1),
			PlayerID:    p.ID,
			Username:    p.Username,
			Points:      p.TotalPoints,
			ScanCount:   p.ScanCount,
			ElapsedTime: p.FormattedElapsed(),
		}
	}
	return entries
}

// elapsedBits is the width reserved for the elapsed-time bonus in a
// composite score; points occupy the bits above it.
const elapsedBits = 21

const maxElapsedBonus = int64(1)<<(elapsedBits-1) - 1

// CompositeScore packs points and the elapsed tie-break into a single value
// suitable for a sorted-set score. Invariant: for any two players the
// composite order equals the Rank order on (points desc, elapsed asc,
// undefined-elapsed last). Exact as a float64 for points below 2^31.
func CompositeScore(p *Player) float64 {
	var bonus int64
	if minutes, ok := p.ElapsedMinutes(); ok {
		if minutes > maxElapsedBonus-1 {
			minutes = maxElapsedBonus - 1
		}
		bonus = maxElapsedBonus - minutes
	}
	return float64(p.TotalPoints<<elapsedBits + bonus)
}

// PointsFromComposite recovers the points component of a composite score
func PointsFromComposite(score float64) int64 {
	return int64(score) >> elapsedBits
}

// ElapsedFromComposite recovers the elapsed minutes packed into a composite
// score. ok is false when the player had no defined elapsed time; resolution
// is one minute and values past the clamp ceiling read back as the ceiling.
func ElapsedFromComposite(score float64) (int64, bool) {
	bonus := int64(score) & (int64(1)<<elapsedBits - 1)
	if bonus == 0 {
		return 0, false
	}
	return maxElapsedBonus - bonus, true
}
