package contribution

import "errors"

// Sentinel kinds for contribution errors.
var (
	ErrInvalidValue = errors.New("invalid contribution value")
)
