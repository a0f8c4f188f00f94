package domain

// ScanStatus discriminates the possible results of a scan attempt. Every
// value except ScanCredited leaves the store untouched; none of them are
// errors in the Go sense.
type ScanStatus string

const (
	ScanCredited        ScanStatus = "credited"
	ScanAlreadyScanned  ScanStatus = "already_scanned"
	ScanUnrecognized    ScanStatus = "unrecognized"
	ScanOutsidePlayArea ScanStatus = "outside_play_area"
	ScanTooFarFromSite  ScanStatus = "too_far_from_site"
)

// ScanOutcome is the tagged result of a scan attempt. Which fields are set
// depends on Status: a credited scan carries the record, the updated player
// and the prize/claim results; rejections carry at most the resolved site and
// the measured distance.
type ScanOutcome struct {
	Status         ScanStatus         `json:"status"`
	Site           *Site              `json:"site,omitempty"`
	Record         *ScanRecord        `json:"record,omitempty"`
	Player         *Player            `json:"player,omitempty"`
	Prize          *AllocationOutcome `json:"prize,omitempty"`
	Claim          *ClaimNotification `json:"claim,omitempty"`
	DistanceMeters float64            `json:"distance_m,omitempty"`
}

// Credited reports whether the scan mutated state
func (o *ScanOutcome) Credited() bool {
	return o.Status == ScanCredited
}

// AllocationOutcome is the tagged result of a prize allocation attempt.
// Losing a race for the last code is the same outcome as an empty pool:
// no prize available, not an error.
type AllocationOutcome struct {
	Allocated bool       `json:"allocated"`
	Code      *PrizeCode `json:"code,omitempty"`
}
