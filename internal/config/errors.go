package config

import (
	"errors"
)

// Sentinel kinds so callers can errors.Is on load failures.
var (
	// ErrInvalidConfig is returned when a loaded value fails validation,
	// for example a value pool that does not parse as a decimal.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrLoadConfig is returned when a provider (file or env) fails.
	ErrLoadConfig = errors.New("load config failed")
)
