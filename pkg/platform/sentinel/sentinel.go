package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so registry services can translate them into registry errors.
//
//   - ErrNotFound: row or key does not exist
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrAlreadyUsed: a one-shot resource (instance slot) is already taken
//   - ErrInvalidState: entity in wrong state for requested operation
//   - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
