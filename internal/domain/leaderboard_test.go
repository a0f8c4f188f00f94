package domain

import (
	"testing"
	"time"
)

func playerWithScans(id string, points int64, scans int64, first, last time.Time) Player {
	p := Player{ID: id, Username: id, TotalPoints: points, ScanCount: scans}
	if scans > 0 {
		p.FirstScanAt = &first
		p.LastScanAt = &last
	}
	return p
}

func TestRankByPointsDescending(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	players := []Player{
		playerWithScans("alice", 30, 3, base, base.Add(time.Hour)),
		playerWithScans("bob", 50, 5, base, base.Add(2*time.Hour)),
		playerWithScans("carol", 10, 1, base, base),
	}

	entries := Rank(players)
	want := []string{"bob", "alice", "carol"}
	for i, id := range want {
		if entries[i].PlayerID != id {
			t.Fatalf("rank %d: expected %s, got %s", i+1, id, entries[i].PlayerID)
		}
		if entries[i].Rank != int64(i+1) {
			t.Fatalf("expected rank %d, got %d", i+1, entries[i].Rank)
		}
	}
}

func TestRankTieBrokenByElapsedAscending(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	players := []Player{
		playerWithScans("slow", 40, 4, base, base.Add(5*time.Hour)),
		playerWithScans("fast", 40, 4, base, base.Add(90*time.Minute)),
	}

	entries := Rank(players)
	if entries[0].PlayerID != "fast" || entries[1].PlayerID != "slow" {
		t.Fatalf("expected fast before slow, got %s then %s",
			entries[0].PlayerID, entries[1].PlayerID)
	}
	if entries[0].ElapsedTime != "1h 30m" {
		t.Fatalf("expected formatted elapsed 1h 30m, got %q", entries[0].ElapsedTime)
	}
}

func TestRankUndefinedElapsedSortsLast(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	players := []Player{
		// Single scan: no defined elapsed time.
		playerWithScans("onescan", 40, 1, base, base),
		playerWithScans("timed", 40, 3, base, base.Add(6*time.Hour)),
	}

	entries := Rank(players)
	if entries[0].PlayerID != "timed" {
		t.Fatalf("player with defined elapsed must rank above undefined, got %s first",
			entries[0].PlayerID)
	}
	if entries[1].ElapsedTime != "-" {
		t.Fatalf("undefined elapsed should render as -, got %q", entries[1].ElapsedTime)
	}
}

func TestRankDeterministicOnFullTie(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	players := []Player{
		playerWithScans("zed", 20, 2, base, base.Add(time.Hour)),
		playerWithScans("amy", 20, 2, base, base.Add(time.Hour)),
	}

	first := Rank(players)
	second := Rank([]Player{players[1], players[0]})
	if first[0].PlayerID != second[0].PlayerID {
		t.Fatalf("rank order must not depend on input order")
	}
	if first[0].PlayerID != "amy" {
		t.Fatalf("full tie breaks by player ID, got %s first", first[0].PlayerID)
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	players := []Player{
		playerWithScans("b", 1, 1, base, base),
		playerWithScans("a", 2, 1, base, base),
	}
	Rank(players)
	if players[0].ID != "b" {
		t.Fatalf("input slice was reordered")
	}
}

func TestCompositeScoreAgreesWithRank(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	players := []Player{
		playerWithScans("high", 50, 2, base, base.Add(4*time.Hour)),
		playerWithScans("fast", 40, 2, base, base.Add(30*time.Minute)),
		playerWithScans("slow", 40, 2, base, base.Add(9*time.Hour)),
		playerWithScans("untimed", 40, 1, base, base),
		playerWithScans("low", 10, 2, base, base.Add(time.Minute)),
	}

	entries := Rank(players)
	for i := 1; i < len(entries); i++ {
		var prev, cur *Player
		for j := range players {
			if players[j].ID == entries[i-1].PlayerID {
				prev = &players[j]
			}
			if players[j].ID == entries[i].PlayerID {
				cur = &players[j]
			}
		}
		if CompositeScore(prev) < CompositeScore(cur) {
			t.Fatalf("composite score order disagrees with Rank between %s and %s",
				prev.ID, cur.ID)
		}
	}

	p := playerWithScans("p", 123, 2, base, base.Add(time.Hour))
	if got := PointsFromComposite(CompositeScore(&p)); got != 123 {
		t.Fatalf("expected to recover 123 points from composite, got %d", got)
	}
}

func TestElapsedFromCompositeRoundTrip(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	timed := playerWithScans("timed", 40, 2, base, base.Add(3*time.Hour+12*time.Minute))
	minutes, ok := ElapsedFromComposite(CompositeScore(&timed))
	if !ok || minutes != 192 {
		t.Fatalf("expected 192 minutes recovered, got %d (defined=%v)", minutes, ok)
	}
	if got := FormatElapsed(minutes, ok); got != "3h 12m" {
		t.Fatalf("expected 3h 12m from recovered minutes, got %q", got)
	}

	untimed := playerWithScans("untimed", 40, 1, base, base)
	if _, ok := ElapsedFromComposite(CompositeScore(&untimed)); ok {
		t.Fatalf("undefined elapsed must not survive the composite round trip")
	}
	if got := FormatElapsed(ElapsedFromComposite(CompositeScore(&untimed))); got != "-" {
		t.Fatalf("undefined elapsed should format as -, got %q", got)
	}

	zeroMinutes := playerWithScans("sprinter", 40, 2, base, base.Add(30*time.Second))
	minutes, ok = ElapsedFromComposite(CompositeScore(&zeroMinutes))
	if !ok || minutes != 0 {
		t.Fatalf("sub-minute elapsed should recover as a defined 0, got %d (defined=%v)", minutes, ok)
	}
}

func TestFormattedElapsed(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	p := playerWithScans("p", 10, 3, base, base.Add(3*time.Hour+12*time.Minute))
	if got := p.FormattedElapsed(); got != "3h 12m" {
		t.Fatalf("expected 3h 12m, got %q", got)
	}

	fresh := Player{ID: "new"}
	if got := fresh.FormattedElapsed(); got != "-" {
		t.Fatalf("player without scans should format as -, got %q", got)
	}
}
