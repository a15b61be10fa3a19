package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Middleware guards API routes with the given authorizer. Health endpoints
// stay open so probes keep working without credentials.
func Middleware(az Authorizer, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/health") {
				next.ServeHTTP(w, r)
				return
			}
			// A missing header surfaces as an empty key so open
			// authorizers can still accept the request.
			apiKey, _ := ExtractAPIKey(r)
			if err := az.Authorize(r.Context(), apiKey, r.Method+" "+r.URL.Path); err != nil {
				log.Debug().Str("path", r.URL.Path).Err(err).Msg("request rejected")
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
