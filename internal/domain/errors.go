package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrDepotUnavailable indicates the account cannot access a depot; it is counted as skipped
	ErrDepotUnavailable = errors.New("depot is not available to this account")

	// ErrAppNotFound indicates the app does not exist or returned no info
	ErrAppNotFound = errors.New("app not found")

	// ErrOperationNotFound indicates no run with the requested ID is recorded
	ErrOperationNotFound = errors.New("operation not found")

	// ErrNoBackend indicates no Steam client backend is registered under the requested name
	ErrNoBackend = errors.New("no steam backend registered")
)
