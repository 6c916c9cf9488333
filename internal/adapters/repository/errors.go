package repository

import "errors"

// Sentinel kinds for calculation store errors.
var (
	ErrNotFound         = errors.New("calculation not found")
	ErrAlreadyFinalized = errors.New("calculation already finalized")
	ErrStaleRevision    = errors.New("concurrent modification")
	ErrDuplicateRecord  = errors.New("duplicate contribution record")
)
