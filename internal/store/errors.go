package store

import "errors"

var (
	// ErrNotFound is returned when a requested project doesn't exist
	ErrNotFound = errors.New("project not found")
	// ErrAlreadyExists is returned when trying to create a duplicate project
	ErrAlreadyExists = errors.New("project already exists")
	// ErrIssueNotFound is returned when resolving an issue that isn't tracked
	ErrIssueNotFound = errors.New("issue not found")
	// ErrPoolExhausted is returned when a connection checkout exceeds its timeout
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrValidation is returned for malformed input fields
	ErrValidation = errors.New("validation failed")
	// ErrBackendUnavailable is returned when the durable store is unreachable
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
