package handlers

import (
	"net/http"

	"github.com/calendarlogger/calendar-logger/internal/version"
	"gorm.io/gorm"
)

// HealthHandler reports whether the database answers.
func HealthHandler(database *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := database.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
	}
}
