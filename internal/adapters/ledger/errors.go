package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrInvalidDelta          = errors.New("invalid ledger delta")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrInvalidTransferTarget = errors.New("invalid transfer target")
	ErrNotFound              = errors.New("account not found")
)
