package middleware

import (
	"net/http"

	"github.com/calendarlogger/calendar-logger/internal/logging"
)

// OperationID tags the request context with X-Request-ID, or a fresh id, so
// Zoho calls made while serving it share one id in the logs.
func OperationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.NewOpID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithOpID(r.Context(), id)))
	})
}
