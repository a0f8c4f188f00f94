package domain

import (
	"fmt"
	"time"
)

// Player holds a player's cumulative hunt state. The aggregate fields are
// derived from the scan ledger and repaired by the reconciliation worker;
// the ledger remains the source of truth.
type Player struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	TotalPoints int64      `json:"total_points"`
	ScanCount   int64      `json:"scan_count"`
	FirstScanAt *time.Time `json:"first_scan_at,omitempty"`
	LastScanAt  *time.Time `json:"last_scan_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ElapsedMinutes returns the whole minutes between the player's first and most
// recent scan. A player with fewer than two scans has no defined elapsed time.
func (p *Player) ElapsedMinutes() (int64, bool) {
	if p.ScanCount < 2 || p.FirstScanAt == nil || p.LastScanAt == nil {
		return 0, false
	}
	d := p.LastScanAt.Sub(*p.FirstScanAt)
	if d < 0 {
		return 0, false
	}
	return int64(d / time.Minute), true
}

// FormattedElapsed renders elapsed time as "3h 12m", or "-" when undefined
func (p *Player) FormattedElapsed() string {
	return FormatElapsed(p.ElapsedMinutes())
}

// FormatElapsed renders whole minutes as "3h 12m", or "-" when undefined
func FormatElapsed(minutes int64, ok bool) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// PlayerInfo is a lightweight player information struct used for caching
type PlayerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Position is a player's last reported location
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}
