package auth

import (
	"github.com/chronoplan/scheduler/internal/config"
)

// NewFromConfig picks the authorizer for the current deployment. Configured
// keys get the static key set; an empty list leaves the API open, which is
// only intended for local development.
func NewFromConfig(cfg *config.Config) Authorizer {
	if keys := cfg.APIKeyList(); len(keys) > 0 {
		return NewStaticAuthorizer(keys)
	}
	return OpenAuthorizer{}
}
