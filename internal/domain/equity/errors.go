package equity

import "errors"

// Sentinel kinds for valuation/equity errors.
var (
	ErrOutOfRange          = errors.New("investment out of range")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidEntity       = errors.New("invalid entity")
)
