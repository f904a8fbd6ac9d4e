package triage

import "errors"

var (
	// ErrNotFound means the referenced message or triage action does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a triage action was already resolved by a
	// concurrent caller; the losing resolution is rejected, not re-applied.
	ErrConflict = errors.New("already resolved")

	// ErrBackendUnavailable means the decision backend could not be
	// reached (network, auth, quota, timeout). Retryable; no audit
	// records are written for the failed attempt.
	ErrBackendUnavailable = errors.New("decision backend unavailable")
)
