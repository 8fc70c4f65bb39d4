package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/calendarlogger/calendar-logger/internal/db"
	"gorm.io/gorm"
)

// APIKeyAuth middleware validates the local API key from the Authorization
// or x-api-key header.
func APIKeyAuth(database *gorm.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedKey := db.GetAPIKey(database)
			if expectedKey == "" {
				// No key stored yet (first run before InitDB generated one).
				next.ServeHTTP(w, r)
				return
			}

			if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				if keyMatches(strings.TrimPrefix(authHeader, "Bearer "), expectedKey) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if keyMatches(r.Header.Get("x-api-key"), expectedKey) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "authentication_error"}}`))
		})
	}
}

func keyMatches(got, expected string) bool {
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
