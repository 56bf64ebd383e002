package domain

import "errors"

// Error taxonomy shared by every component. Gateway and ledger code wraps
// these sentinels with context; callers branch with errors.Is.
var (
	// ErrValidation: the input is wrong locally. Never reaches the network.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork: the HTTP call could not complete (transport failure or
	// timeout). Retrying is the user's choice, never automatic.
	ErrNetwork = errors.New("network failure")

	// ErrInsufficientPosition: a sell exceeds the derived holding. Checked
	// before any network call.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrNotFound: the target record no longer exists server-side. For
	// cancels this is treated as already resolved.
	ErrNotFound = errors.New("not found")

	// ErrEmptyHistory: the backend has no price points yet. A display
	// state, not a failure.
	ErrEmptyHistory = errors.New("empty price history")
)
