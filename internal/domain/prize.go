package domain

import "time"

// PrizePolicy selects how prize eligibility is decided
type PrizePolicy string

const (
	// PrizePolicyPerSite allocates from the codes bound to the scanned site
	PrizePolicyPerSite PrizePolicy = "per_site"
	// PrizePolicyCompletion allocates an unbound code once a player has
	// scanned the configured number of distinct sites
	PrizePolicyCompletion PrizePolicy = "completion"
)

// PrizeCode is a scarce single-use redemption code. Used transitions
// false -> true exactly once and is never reset; no code is allocated twice.
type PrizeCode struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	SiteID    string     `json:"site_id,omitempty"`
	SiteName  string     `json:"site_name,omitempty"`
	Used      bool       `json:"used"`
	ClaimedBy string     `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// Bound reports whether the code is tied to a specific site
func (c *PrizeCode) Bound() bool {
	return c.SiteID != "" || c.SiteName != ""
}

// ClaimNotification is the record behind the post-scan popup. A claim with a
// prize code transitions claimed false -> true when the player acknowledges
// it; informational claims (no code) are never claimed in the prize sense.
type ClaimNotification struct {
	ID        string     `json:"id"`
	PlayerID  string     `json:"player_id"`
	SiteID    string     `json:"site_id,omitempty"`
	PrizeCode string     `json:"prize_code,omitempty"`
	Message   string     `json:"message"`
	Claimed   bool       `json:"claimed"`
	CreatedAt time.Time  `json:"created_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// HasPrize reports whether the claim carries an allocated prize code
func (c *ClaimNotification) HasPrize() bool {
	return c.PrizeCode != ""
}
