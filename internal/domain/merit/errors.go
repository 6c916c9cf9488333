package merit

import "errors"

// Sentinel kinds for merit calculation errors.
var (
	ErrNoParticipants      = errors.New("no participants")
	ErrInvalidContribution = errors.New("invalid contribution value")
	ErrInvalidPool         = errors.New("invalid value pool")
)
