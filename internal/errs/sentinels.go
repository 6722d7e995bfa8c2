// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service/transport layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRunning indicates a sync run is already in flight.
	ErrAlreadyRunning = errors.New("sync already running")

	// ErrUnknownJob indicates a job name that is not in the registry.
	ErrUnknownJob = errors.New("unknown job")

	// ErrNoPrimaryInstance indicates a platform has no primary app instance configured.
	ErrNoPrimaryInstance = errors.New("no primary app instance")

	// ErrPlatformNotConfigured indicates no adapter was built for the platform (missing credentials).
	ErrPlatformNotConfigured = errors.New("platform not configured")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput indicates a malformed request argument.
	ErrInvalidInput = errors.New("invalid input")
)
