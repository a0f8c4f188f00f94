package domain

import (
	"strings"
	"time"
)

// SiteStatus controls whether a site is visible and scannable
type SiteStatus string

const (
	SiteStatusActive   SiteStatus = "Active"
	SiteStatusInactive SiteStatus = "Inactive"
)

// Site is a physical scan target in the catalog. Sites are provisioned by an
// external administrative process and are read-only to this service.
type Site struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Points      int64      `json:"points"`
	Status      SiteStatus `json:"status"`
	Type        string     `json:"type,omitempty"`
	Description string     `json:"description,omitempty"`
	Picture     string     `json:"picture,omitempty"`
	RewardLink  string     `json:"reward_link,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Scannable reports whether the site can currently be credited. Status is
// compared case-insensitively: the catalog is provisioned externally and
// rows arrive with either casing.
func (s *Site) Scannable() bool {
	return strings.EqualFold(string(s.Status), string(SiteStatusActive))
}
