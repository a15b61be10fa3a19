package auth

import (
	"context"
)

// Authorizer validates API keys presented on scheduling requests.
type Authorizer interface {
	// Authorize returns nil when the key may call the named operation.
	Authorize(ctx context.Context, apiKey, operation string) error
}
