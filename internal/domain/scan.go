package domain

import "time"

// ScanRecord is one credited scan. Records are immutable once written and
// there is at most one per (player, site) pair; the record's existence is the
// sole source of truth for "already scanned".
type ScanRecord struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"player_id"`
	SiteID    string    `json:"site_id"`
	SiteName  string    `json:"site_name"`
	Points    int64     `json:"points"`
	RawToken  string    `json:"raw_token,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ScanSubmission is a request to credit a scanned token. Coordinates are
// optional; when absent the service falls back to the player's last reported
// position, and with neither available the geofence check fails closed.
type ScanSubmission struct {
	PlayerID  string   `json:"player_id"`
	Username  string   `json:"username,omitempty"`
	Token     string   `json:"token"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
}
