package server

import (
	"net/http"

	"github.com/tjfontaine/chat-responses-gateway/internal/auth"
)

// AuthMiddleware rejects requests that do not carry the shared bearer
// secret with a plain-text 401.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authenticator.Authenticate(r); err != nil {
				AddError(r.Context(), err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
