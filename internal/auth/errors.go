package auth

import "errors"

var (
	// ErrMissingAPIKey is returned when no key can be extracted from the request
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned when the presented key is not recognized
	ErrInvalidAPIKey = errors.New("invalid API key")
)
