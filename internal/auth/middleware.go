package auth

import (
	"net/http"
	"strings"

	"github.com/domainforge/gateway/internal/apierr"
)

// Authenticate resolves a Bearer API key, if one is present, into an
// Identity on the request context. A missing Authorization header is not
// an error here — routes that require authentication pair this with
// RequireAuth; routes that merely benefit from it (search, status) read
// FromContext and fall back to anonymous behavior.
func Authenticate(authr *APIKeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				apierr.WriteJSON(w, apierr.New(apierr.KindUnauthorized, "Authorization header must be a Bearer token"))
				return
			}

			rawKey := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			identity, err := authr.Authenticate(r.Context(), rawKey)
			if err != nil {
				apierr.WriteJSON(w, apierr.New(apierr.KindUnauthorized, "invalid API key"))
				return
			}

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that Authenticate did not attach an Identity
// to. Mount after Authenticate on routes that must not run anonymously.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			apierr.WriteJSON(w, apierr.New(apierr.KindUnauthorized, "authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
