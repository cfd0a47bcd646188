package domain

import "errors"

var (
	// ErrNotFound is returned by fetchers when the remote item no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrNoCredentials is returned when a server has no usable token.
	ErrNoCredentials = errors.New("no credentials")
)
