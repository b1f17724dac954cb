package handlers

import (
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuth checks a bearer token against a bcrypt hash. Browsers cannot set
// headers on WebSocket or <img> requests, so a "token" query parameter is
// accepted as well. An empty hash disables the check.
func TokenAuth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokenHash == "" {
			log.Println("WARNING: API_TOKEN_HASH not set, API is unauthenticated")
			return next
		}
		hash := []byte(tokenHash)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
					WriteAPIError(w, r, http.StatusUnauthorized, "invalid_authorization", "Authorization header format must be Bearer {token}")
					return
				}
				token = parts[1]
			}
			if token == "" {
				WriteAPIError(w, r, http.StatusUnauthorized, "missing_token", "Authorization header required")
				return
			}
			if bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
				WriteAPIError(w, r, http.StatusUnauthorized, "invalid_token", "Invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
