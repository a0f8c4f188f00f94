package domain

import "errors"

// Domain errors. Expected business conditions (unrecognized token, already
// scanned, no prize available) are represented as tagged outcomes, not as
// errors; these sentinels cover lookups and infrastructure contracts.
var (
	ErrSiteNotFound    = errors.New("site not found")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrClaimNotFound   = errors.New("claim notification not found")
	ErrPositionUnknown = errors.New("player position unknown")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSiteNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrClaimNotFound)
}
