package auth

import (
	"context"
	"crypto/subtle"
)

// StaticAuthorizer accepts a fixed set of keys loaded from configuration.
// Every accepted key may call every operation.
type StaticAuthorizer struct {
	keys []string
}

// NewStaticAuthorizer creates an authorizer over the given keys.
func NewStaticAuthorizer(keys []string) *StaticAuthorizer {
	return &StaticAuthorizer{keys: keys}
}

// Authorize checks the presented key against the configured set using a
// constant-time comparison per candidate.
func (s *StaticAuthorizer) Authorize(_ context.Context, apiKey, _ string) error {
	if apiKey == "" {
		return ErrMissingAPIKey
	}
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(apiKey)) == 1 {
			return nil
		}
	}
	return ErrInvalidAPIKey
}

// OpenAuthorizer accepts every request. Used when no keys are configured,
// which is the local development default.
type OpenAuthorizer struct{}

func (OpenAuthorizer) Authorize(_ context.Context, _, _ string) error { return nil }
