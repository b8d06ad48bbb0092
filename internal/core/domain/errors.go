package domain

import "errors"

var (
	// ErrInvalidArgument marks a request missing required fields.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks an engine object (container, exec, volume) that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrResourceExhausted is returned when no port is free in a range.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrProvisionFailed wraps engine failures during create/start.
	ErrProvisionFailed = errors.New("provision failed")
	// ErrUnauthorized is returned for a missing or wrong shared secret.
	ErrUnauthorized = errors.New("unauthorized")
)
